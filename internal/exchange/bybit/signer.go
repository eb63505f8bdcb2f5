package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign 构建 Bybit V5 HMAC 签名
// 签名原文: timestamp + apiKey + recvWindow + payload
// GET 的 payload 是编码后的 query string，POST 的 payload 是 JSON body 原文
func Sign(secret, apiKey, timestamp, recvWindow, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + apiKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}
