package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yungbote/lessonflow-backend/internal/flow"
	"github.com/yungbote/lessonflow-backend/internal/logger"
)

const classifierSystemPrompt = `You route a learner's interruption during a lesson.
Reply with JSON only: {"action": one of "answer","clarify","redirect","escalate","pause_lesson",
"response_level": one of "brief","detailed"}.
"answer": the input is an on-topic question worth answering inline.
"clarify": the input is ambiguous and needs a short clarifying reply.
"redirect": the input is off-topic, steer back to the lesson.
"escalate": the learner is frustrated or stuck and needs a human or deeper help.
"pause_lesson": the learner asked to stop or take a break.`

// ClassifierService decides how interrupting input is handled. It asks the
// model first and falls back to keyword rules when the call fails, so a
// flow never stalls on a classification.
type ClassifierService interface {
	Classify(ctx context.Context, input string, snap flow.Snapshot) (flow.Decision, error)
}

type classifierService struct {
	client *openai.Client
	model  string
	log    *logger.Logger
}

func NewClassifierService(log *logger.Logger) ClassifierService {
	serviceLog := log.With("service", "ClassifierService")

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		serviceLog.Warn("OPENAI_API_KEY not set, classifier runs on keyword rules only")
		return &classifierService{log: serviceLog}
	}

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = openai.GPT4oMini
	}
	return &classifierService{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    serviceLog,
	}
}

func (s *classifierService) Classify(ctx context.Context, input string, snap flow.Snapshot) (flow.Decision, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return flow.Decision{Action: flow.ActionClarify, ResponseLevel: "brief"}, nil
	}

	if s.client != nil {
		d, err := s.classifyWithModel(ctx, input, snap)
		if err == nil {
			return d, nil
		}
		s.log.Warn("model classification failed, using keyword fallback", "error", err)
	}
	return keywordClassify(input), nil
}

func (s *classifierService) classifyWithModel(ctx context.Context, input string, snap flow.Snapshot) (flow.Decision, error) {
	user := fmt.Sprintf("Lesson state: %s. Current slide %d of section %d. Learner said: %q",
		snap.CurrentState, snap.Cursors.Slide, snap.Cursors.Section, input)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return flow.Decision{}, err
	}
	if len(resp.Choices) == 0 {
		return flow.Decision{}, fmt.Errorf("empty completion")
	}

	var out struct {
		Action        string `json:"action"`
		ResponseLevel string `json:"response_level"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return flow.Decision{}, fmt.Errorf("decode classification: %w", err)
	}

	action := flow.DecisionAction(strings.ToLower(strings.TrimSpace(out.Action)))
	switch action {
	case flow.ActionAnswer, flow.ActionClarify, flow.ActionRedirect, flow.ActionEscalate, flow.ActionPauseLesson:
	default:
		return flow.Decision{}, fmt.Errorf("unknown action %q", out.Action)
	}
	level := strings.ToLower(strings.TrimSpace(out.ResponseLevel))
	if level != "detailed" {
		level = "brief"
	}
	return flow.Decision{Action: action, ResponseLevel: level}, nil
}

// keywordClassify is the deterministic fallback path.
func keywordClassify(input string) flow.Decision {
	lower := strings.ToLower(input)

	switch {
	case containsAny(lower, "stop", "pause", "break", "hold on"):
		return flow.Decision{Action: flow.ActionPauseLesson, ResponseLevel: "brief"}
	case containsAny(lower, "frustrat", "give up", "this is too hard", "i hate", "help me please"):
		return flow.Decision{Action: flow.ActionEscalate, ResponseLevel: "detailed"}
	case containsAny(lower, "what do you mean", "huh", "confused", "don't understand", "dont understand"):
		return flow.Decision{Action: flow.ActionClarify, ResponseLevel: "brief"}
	case strings.Contains(lower, "?"):
		return flow.Decision{Action: flow.ActionAnswer, ResponseLevel: "brief"}
	default:
		return flow.Decision{Action: flow.ActionRedirect, ResponseLevel: "brief"}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
