package realtime

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	trTypeSubscribe   = "1"
	trTypeUnsubscribe = "2"
)

// 서버 응답 메시지 코드
const (
	msgSubscribed          = "OPSP0000"
	msgUnsubscribed        = "OPSP0001"
	msgAlreadySubscribed   = "OPSP0002"
	msgAlreadyUnsubscribed = "OPSP0003"
	msgServerFatal         = "OPSP0007"
	msgSessionConflict     = "OPSP8996"
)

type requestFrame struct {
	Header requestHeader `json:"header"`
	Body   requestBody   `json:"body"`
}

type requestHeader struct {
	ApprovalKey string `json:"approval_key"`
	Custtype    string `json:"custtype"`
	TrType      string `json:"tr_type"`
	ContentType string `json:"content-type"`
}

type requestBody struct {
	Input requestInput `json:"input"`
}

type requestInput struct {
	TrID  string `json:"tr_id"`
	TrKey string `json:"tr_key"`
}

// encodeRequest builds a subscribe ("1") or unsubscribe ("2") frame.
func encodeRequest(approvalKey, trType string, tr TR) ([]byte, error) {
	return json.Marshal(requestFrame{
		Header: requestHeader{
			ApprovalKey: approvalKey,
			Custtype:    "P",
			TrType:      trType,
			ContentType: "utf-8",
		},
		Body: requestBody{
			Input: requestInput{TrID: tr.ID, TrKey: tr.Key},
		},
	})
}

type controlFrame struct {
	Header struct {
		TrID    string `json:"tr_id"`
		TrKey   string `json:"tr_key"`
		Encrypt string `json:"encrypt"`
	} `json:"header"`
	Body *controlBody `json:"body"`
}

type controlBody struct {
	RtCd   string         `json:"rt_cd"`
	MsgCd  string         `json:"msg_cd"`
	Msg1   string         `json:"msg1"`
	Output *controlOutput `json:"output"`
}

type controlOutput struct {
	Key string `json:"key"`
	IV  string `json:"iv"`
}

func decodeControl(data []byte) (*controlFrame, error) {
	var f controlFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &f, nil
}

func (f *controlFrame) tr() TR {
	return TR{ID: f.Header.TrID, Key: f.Header.TrKey}
}

// eventFrame is a pushed data frame: "<0|1>|<tr_id>|<count>|<payload>".
type eventFrame struct {
	Encrypted bool
	TrID      string
	Count     string
	Payload   string
}

// isEventFrame reports whether data is a pipe-delimited push frame rather than JSON.
func isEventFrame(data []byte) bool {
	return len(data) > 0 && (data[0] == '0' || data[0] == '1')
}

func parseEventFrame(raw string) (eventFrame, error) {
	parts := strings.SplitN(raw, "|", 4)
	if len(parts) != 4 {
		return eventFrame{}, fmt.Errorf("%w: expected 4 parts, got %d", ErrMalformed, len(parts))
	}
	return eventFrame{
		Encrypted: parts[0] == "1",
		TrID:      parts[1],
		Count:     parts[2],
		Payload:   parts[3],
	}, nil
}
