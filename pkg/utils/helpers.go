package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"gorm.io/datatypes"
)

// Float64Ptr returns a pointer to a float64
func Float64Ptr(f float64) *float64 {
	return &f
}

// CalculateFingerprint 计算字节内容的SHA-256指纹（十六进制小写）。
// 相同字节必得相同指纹，与文件名和上传时间无关。
func CalculateFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ConvertArrayToJSON 辅助函数: 将字符串数组转换为JSON
func ConvertArrayToJSON(arr []string) datatypes.JSON {
	if len(arr) == 0 {
		return datatypes.JSON("[]")
	}
	jsonBytes, err := json.Marshal(arr)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(jsonBytes)
}
