package token

// 測試時可覆蓋
var (
	GenerateJWTFunc = GenerateJWT
	ParseJWTFunc    = ParseJWT
)

// GenerateJWTWrapper 讓測試 mock 使用這個包裝函數
func GenerateJWTWrapper(participantID, role, issuer string) (string, error) {
	return GenerateJWTFunc(participantID, role, issuer)
}

// ParseJWTWrapper 讓測試 mock 使用這個包裝函數
func ParseJWTWrapper(t string) (*Claims, error) {
	return ParseJWTFunc(t)
}
