package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeApplicationReceived = "notify:application_received"
)

// hrNotifyChannelPrefix 是 HR 实时事件的 Redis 频道前缀。
const hrNotifyChannelPrefix = "hr_notify:"

// HRNotifyChannel 返回某个 HR 的实时事件频道名。
func HRNotifyChannel(hrID string) string {
	return hrNotifyChannelPrefix + hrID
}

// ApplicationReceivedPayload 描述投递确认邮件所需的最小信息。
type ApplicationReceivedPayload struct {
	Email         string `json:"email"`
	CandidateName string `json:"candidate_name"`
	JobTitle      string `json:"job_title"`
}

// NewApplicationReceivedTask 构造一个投递确认通知任务。
func NewApplicationReceivedTask(email, candidateName, jobTitle string) (*asynq.Task, error) {
	payload, err := json.Marshal(ApplicationReceivedPayload{
		Email:         email,
		CandidateName: candidateName,
		JobTitle:      jobTitle,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeApplicationReceived, payload), nil
}
