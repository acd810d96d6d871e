package models

import "gorm.io/gorm"

// Student — минимум полей, которые кодируются на карту и нужны при swipe.
type Student struct {
	gorm.Model
	RegisterNumber string `gorm:"column:register_number;uniqueIndex"`
	FullName       string `gorm:"column:full_name"`
	FacultyName    string `gorm:"column:faculty_name"`
	Email          string
}

// Card — выпущенная RFID-карта; одна активная карта на студента.
type Card struct {
	gorm.Model
	UID       string `gorm:"column:uid;uniqueIndex"`
	StudentID uint   `gorm:"index"`
	Student   Student
	Active    bool `gorm:"default:true"`
}
