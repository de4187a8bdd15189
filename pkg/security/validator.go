// Package security 输入校验与清理
package security

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	nonDigit = regexp.MustCompile(`\D`)
	// 印度手机号 10 位，以 6-9 开头
	indianMobile = regexp.MustCompile(`^[6-9]\d{9}$`)
	// PIN 码 6 位，首位不为 0
	pinCode = regexp.MustCompile(`^[1-9]\d{5}$`)

	registerOnce sync.Once
	registerErr  error
)

// NormalizePhone 只保留数字，并去掉 +91 或 0 前缀
func NormalizePhone(phone string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		return digits[2:]
	case len(digits) == 11 && digits[0] == '0':
		return digits[1:]
	}
	return digits
}

// ValidPhone 是否为有效的印度手机号
func ValidPhone(phone string) bool {
	return indianMobile.MatchString(NormalizePhone(phone))
}

// ValidPinCode 是否为有效的 PIN 码
func ValidPinCode(code string) bool {
	return pinCode.MatchString(strings.TrimSpace(code))
}

// SanitizeText 去掉控制字符和首尾空白，用于写入订单和邮件的文本
func SanitizeText(value string) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	return strings.TrimSpace(value)
}

// RegisterBindings 向 gin 的校验器注册 phone 和 pincode 标签
func RegisterBindings() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if registerErr = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return ValidPhone(fl.Field().String())
		}); registerErr != nil {
			return
		}
		registerErr = v.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
			return ValidPinCode(fl.Field().String())
		})
	})
	return registerErr
}
