package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword 以 bcrypt 默认代价生成口令哈希，注册与管理员引导共用。
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash 报告明文口令与存储哈希是否匹配。
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
