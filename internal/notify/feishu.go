package notify

import (
	"strconv"
	"time"
)

const feishuEndpoint = "https://open.feishu.cn/open-apis/bot/v2/hook/"

type feishuPayload struct {
	Timestamp string `json:"timestamp,omitempty"`
	Sign      string `json:"sign,omitempty"`
	MsgType   string `json:"msg_type"`
	Content   struct {
		Text string `json:"text"`
	} `json:"content"`
}

// buildFeishu targets a Feishu custom bot. secretKey is the hook token from
// the bot's webhook URL; signSecret, when set, enables signed mode (second
// timestamp + sign inside the JSON body).
func buildFeishu(cfg map[string]any, ev Event) (*Request, error) {
	token := cfgString(cfg, "secretKey")
	if token == "" {
		return nil, configErr(ChannelFeishu, "secretKey is required")
	}

	var payload feishuPayload
	if secret := cfgString(cfg, "signSecret"); secret != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		payload.Timestamp = ts
		payload.Sign = hmacSign(secret, ts)
	}
	payload.MsgType = "text"
	payload.Content.Text = ev.Text()
	return jsonRequest(feishuEndpoint+token, payload)
}
