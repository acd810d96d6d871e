package directory

import (
	"errors"
	"strings"

	"cardlink/internal/models"

	"gorm.io/gorm"
)

// StudentInfo — DTO, который relay кладёт в swipe-события.
type StudentInfo struct {
	RegisterNumber string `json:"register_number"`
	Name           string `json:"name"`
	FacultyName    string `json:"faculty_name"`
}

// Lookup — контракт справочника для relay (nil-реализация = без обогащения).
type Lookup interface {
	StudentByCardUID(uid string) (StudentInfo, bool, error)
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// StudentByCardUID — студент, на которого выпущена активная карта с данным UID.
func (r *Repo) StudentByCardUID(uid string) (StudentInfo, bool, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return StudentInfo{}, false, nil
	}

	var c models.Card
	err := r.db.Preload("Student").
		Where(&models.Card{UID: uid, Active: true}).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StudentInfo{}, false, nil
		}
		return StudentInfo{}, false, err
	}

	return StudentInfo{
		RegisterNumber: c.Student.RegisterNumber,
		Name:           strings.TrimSpace(c.Student.FullName),
		FacultyName:    c.Student.FacultyName,
	}, true, nil
}

// UpsertIssuedCard — фиксация выпуска карты после успешной записи (вызывается порталом).
func (r *Repo) UpsertIssuedCard(uid string, studentID uint) (models.Card, error) {
	var c models.Card
	err := r.db.Where(&models.Card{UID: uid}).First(&c).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Card{}, err
		}
		c = models.Card{UID: uid, StudentID: studentID, Active: true}
		return c, r.db.Create(&c).Error
	}
	c.StudentID = studentID
	c.Active = true
	return c, r.db.Save(&c).Error
}
