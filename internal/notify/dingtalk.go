package notify

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const dingTalkEndpoint = "https://oapi.dingtalk.com/robot/send"

type dingTalkPayload struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

// buildDingTalk targets a DingTalk group robot. secretKey is the
// access_token from the robot's webhook URL; signSecret, when set, enables
// the robot's signed mode (millisecond timestamp + sign as query params).
func buildDingTalk(cfg map[string]any, ev Event) (*Request, error) {
	token := cfgString(cfg, "secretKey")
	if token == "" {
		return nil, configErr(ChannelDingTalk, "secretKey is required")
	}

	endpoint := fmt.Sprintf("%s?access_token=%s", dingTalkEndpoint, url.QueryEscape(token))
	if secret := cfgString(cfg, "signSecret"); secret != "" {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		sign := hmacSign(secret, ts)
		endpoint += "&timestamp=" + ts + "&sign=" + url.QueryEscape(sign)
	}

	var payload dingTalkPayload
	payload.MsgType = "text"
	payload.Text.Content = ev.Text()
	return jsonRequest(endpoint, payload)
}
