package calllog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const analysisSystemPrompt = `당신은 치과 상담 전화를 분석하는 어시스턴트입니다.
통화 녹취록을 읽고 아래 JSON 형식으로만 답하세요.

{
  "classification": "신환 | 구신환 | 구환 | 거래처 | 스팸 | 부재중 | 기타",
  "temperature": "hot | warm | cold",
  "interest": "관심 진료 항목 (예: 임플란트, 교정). 없으면 빈 문자열",
  "summary": "통화 내용 2~3문장 요약",
  "follow_up": "데스크가 해야 할 다음 조치. 없으면 빈 문자열",
  "confidence": 0.0
}

분류 기준:
- 신환: 처음 문의하는 예비 환자
- 구신환: 과거 상담만 받고 치료하지 않은 환자의 재문의
- 구환: 치료 이력이 있는 기존 환자
- 거래처: 기공소, 재료상 등 업무 전화
- 스팸: 광고, 영업 전화
- 부재중: 대화가 성립하지 않은 통화

JSON 외의 다른 텍스트를 출력하지 마세요.`

// Summarizer turns a call transcript into a structured AIAnalysis.
type Summarizer struct {
	client LLMClient
	model  string
}

// NewSummarizer creates a summarizer bound to one model id.
func NewSummarizer(client LLMClient, model string) *Summarizer {
	return &Summarizer{client: client, model: model}
}

// Summarize analyzes one transcript. The model answers in JSON; anything
// around the JSON object (code fences, preamble) is stripped before parsing.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (*AIAnalysis, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrNoTranscript
	}

	resp, err := s.client.Complete(ctx, LLMRequest{
		Model:  s.model,
		System: []string{analysisSystemPrompt},
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "통화 녹취록:\n" + transcript},
		},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("calllog: analysis completion failed: %w", err)
	}

	analysis, err := parseAnalysis(resp.Text)
	if err != nil {
		return nil, err
	}
	analysis.AnalyzedAt = time.Now().UTC()
	return analysis, nil
}

func parseAnalysis(raw string) (*AIAnalysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	jsonText := raw
	if !strings.HasPrefix(jsonText, "{") {
		start := strings.Index(jsonText, "{")
		end := strings.LastIndex(jsonText, "}")
		if start >= 0 && end > start {
			jsonText = jsonText[start : end+1]
		}
	}

	var decoded struct {
		Classification string  `json:"classification"`
		Temperature    string  `json:"temperature"`
		Interest       string  `json:"interest"`
		Summary        string  `json:"summary"`
		FollowUp       string  `json:"follow_up"`
		Confidence     float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(jsonText), &decoded); err != nil {
		return nil, fmt.Errorf("calllog: analysis parse: %w", err)
	}

	class := Classification(strings.TrimSpace(decoded.Classification))
	if !class.Valid() {
		class = ClassOther
	}
	temp := strings.ToLower(strings.TrimSpace(decoded.Temperature))
	switch temp {
	case "hot", "warm", "cold":
	default:
		temp = "cold"
	}

	return &AIAnalysis{
		Classification: class,
		Temperature:    temp,
		Interest:       strings.TrimSpace(decoded.Interest),
		Summary:        strings.TrimSpace(decoded.Summary),
		FollowUp:       strings.TrimSpace(decoded.FollowUp),
		Confidence:     decoded.Confidence,
	}, nil
}
