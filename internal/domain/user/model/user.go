package model

import (
	baseModel "rakhi_store/pkg/model"
)

const (
	RoleUser  = 0
	RoleAdmin = 1
)

// User 用户模型
type User struct {
	baseModel.BaseModel
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"` // 密码不返回给前端
	Name         string `gorm:"size:120" json:"name"`
	Phone        string `gorm:"size:20" json:"phone"`
	Role         int    `gorm:"not null;default:0" json:"role"`
	IsGuest      bool   `gorm:"not null;default:false" json:"isGuest"` // 结账时自动创建
}

// TableName 表名
func (User) TableName() string {
	return "users"
}
