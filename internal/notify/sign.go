package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// hmacSign computes the robot signature shared by DingTalk and Feishu:
// base64(HMAC-SHA256(key=secret, msg="{timestamp}\n{secret}")).
func hmacSign(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
