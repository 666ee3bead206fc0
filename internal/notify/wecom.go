package notify

import (
	"fmt"
	"net/url"
)

const weComEndpoint = "https://qyapi.weixin.qq.com/cgi-bin/webhook/send"

type weComPayload struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

// buildWeCom targets a WeCom group robot. secretKey is the key from the
// robot's webhook URL; WeCom robots have no signed mode.
func buildWeCom(cfg map[string]any, ev Event) (*Request, error) {
	key := cfgString(cfg, "secretKey")
	if key == "" {
		return nil, configErr(ChannelWeCom, "secretKey is required")
	}

	var payload weComPayload
	payload.MsgType = "text"
	payload.Text.Content = ev.Text()
	return jsonRequest(fmt.Sprintf("%s?key=%s", weComEndpoint, url.QueryEscape(key)), payload)
}
