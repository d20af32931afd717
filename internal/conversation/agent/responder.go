// Package agent runs the AI travel assistant that answers lead messages
// while a conversation is in AI mode.
package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/google/uuid"

	"tripflow_backend/internal/conversation/domain"
	convrepo "tripflow_backend/internal/conversation/repository"
	"tripflow_backend/platform/ai/openaicompat"
	"tripflow_backend/platform/config"
	"tripflow_backend/platform/logger"
)

const appName = "travel_assistant"

const instruction = `Você é um assistente virtual de uma agência de viagens.
Responda sempre em português brasileiro, de forma breve e cordial.

PROTOCOLO:
1. Ajude o lead a planejar a viagem: destino, datas e orçamento.
2. Se ainda faltar destino, datas ou orçamento, pergunte por UMA dessas
   informações por vez.
3. Nunca prometa preços nem feche propostas; isso é papel do consultor.
4. Não diga que vai transferir o atendimento; a transferência acontece
   fora desta conversa.`

// Assistant generates AI replies through an ADK agent over an
// OpenAI-compatible model.
type Assistant struct {
	runner         *runner.Runner
	sessionService session.Service
	log            *logger.Logger
}

// NewAssistant builds the ADK agent. Returns nil when the responder is
// disabled; the orchestrator treats a nil Responder as AI silence.
func NewAssistant(cfg config.ResponderConfig, log *logger.Logger) (*Assistant, error) {
	if !cfg.IsResponderEnabled() {
		return nil, nil
	}

	chatModel := openaicompat.NewModel(openaicompat.Config{
		APIKey:  cfg.GetLLMAPIKey(),
		BaseURL: cfg.GetLLMBaseURL(),
		Model:   cfg.GetLLMModel(),
	})

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "TravelAssistant",
		Model:       chatModel,
		Description: "Conversational travel assistant for inbound leads.",
		Instruction: instruction,
	})
	if err != nil {
		return nil, fmt.Errorf("create assistant agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("create assistant runner: %w", err)
	}

	return &Assistant{
		runner:         r,
		sessionService: sessionService,
		log:            log,
	}, nil
}

// Reply produces the assistant's answer to the lead's latest message. The
// recent history is replayed into the prompt so each invocation is
// self-contained.
func (a *Assistant) Reply(ctx context.Context, conv domain.Conversation, history []convrepo.Message, text string) (string, error) {
	if a == nil || a.runner == nil {
		return "", nil
	}

	userMessage := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{Text: buildPrompt(history, text)},
		},
	}

	userID := "lead-" + conv.LeadID.String()
	sessionID := uuid.New().String()
	_, err := a.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("create assistant session: %w", err)
	}

	var output strings.Builder
	for event, err := range a.runner.Run(ctx, userID, sessionID, userMessage, agent.RunConfig{StreamingMode: agent.StreamingModeNone}) {
		if err != nil {
			return "", err
		}
		if event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			output.WriteString(part.Text)
		}
	}

	reply := strings.TrimSpace(output.String())
	a.log.Debug("assistant replied", "conversationId", conv.ID, "chars", len(reply))
	return reply, nil
}

func buildPrompt(history []convrepo.Message, text string) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Histórico recente da conversa:\n")
		for _, msg := range history {
			b.WriteString(roleLabel(msg.Sender))
			b.WriteString(": ")
			b.WriteString(msg.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Mensagem do lead: ")
	b.WriteString(text)
	return b.String()
}

func roleLabel(sender string) string {
	switch sender {
	case domain.SenderAI:
		return "Assistente"
	case domain.SenderConsultant:
		return "Consultor"
	case domain.SenderSystem:
		return "Sistema"
	default:
		return "Lead"
	}
}
