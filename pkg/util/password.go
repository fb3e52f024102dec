package util

import (
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength 注册时的最短密码长度
const MinPasswordLength = 8

// MaxPasswordBytes bcrypt 只接受不超过 72 字节的密码
const MaxPasswordBytes = 72

// HashPassword turns a plaintext password into a bcrypt hash.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword verifies a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
