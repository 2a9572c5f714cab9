package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/notify"
	"github.com/afyalink/afyalink/internal/ussd"
)

const assistantSystemPrompt = "You are a helpful assistant replying to messages from basic phones in Kenya. Keep replies short and in plain text."

// requirePost rejects other methods with 405 and an Allow header.
func requirePost(w http.ResponseWriter, r *http.Request, handler string) bool {
	if r.Method == http.MethodPost {
		return true
	}
	slog.Warn(handler+": method not allowed", "method", r.Method)
	w.Header().Set("Allow", http.MethodPost)
	writeText(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	return false
}

// parseGatewayForm parses the form body. A malformed body decodes as whatever
// fields could be read.
func parseGatewayForm(r *http.Request, handler string) {
	if err := r.ParseForm(); err != nil {
		slog.Warn(handler+": failed to parse form", "error", err)
	}
}

func (s *Server) ussdHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r, "Server.ussdHandler") {
		return
	}
	if !s.Ready() {
		slog.Warn("Server.ussdHandler: service not ready")
		writeUSSD(w, http.StatusServiceUnavailable, ussd.ScreenUnavailable)
		return
	}
	parseGatewayForm(r, "Server.ussdHandler")
	req := ussd.Decode(r.PostForm)
	slog.Debug("Server.ussdHandler: request decoded", "sessionID", req.SessionID, "phone", req.Phone, "depth", req.Path.Len())

	resp, err := s.router.Handle(r.Context(), req)
	if err != nil {
		writeUSSD(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeUSSD(w, http.StatusOK, resp)
}

func (s *Server) pathwaysHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r, "Server.pathwaysHandler") {
		return
	}
	if s.pathways == nil {
		slog.Warn("Server.pathwaysHandler: service not ready")
		writeUSSD(w, http.StatusServiceUnavailable, ussd.ScreenUnavailable)
		return
	}
	parseGatewayForm(r, "Server.pathwaysHandler")
	req := ussd.Decode(r.PostForm)
	writeUSSD(w, http.StatusOK, s.pathways.Handle(r.Context(), req))
}

func (s *Server) careerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r, "Server.careerHandler") {
		return
	}
	if s.career == nil {
		slog.Warn("Server.careerHandler: service not ready")
		writeUSSD(w, http.StatusServiceUnavailable, ussd.ScreenUnavailable)
		return
	}
	parseGatewayForm(r, "Server.careerHandler")
	req := ussd.Decode(r.PostForm)
	writeUSSD(w, http.StatusOK, s.career.Handle(r.Context(), req))
}

// assistantReply asks the AI to answer an inbound message.
func (s *Server) assistantReply(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	defer cancel()
	prompt := fmt.Sprintf("Respond to the following SMS message in a respectful, clear, and helpful tone: %q", message)
	reply, err := s.assistant.GeneratePromptWithContext(ctx, assistantSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("AI response is empty")
	}
	return reply, nil
}

// inboundMessage reads the from and text fields of an SMS or voice callback.
func (s *Server) inboundMessage(w http.ResponseWriter, r *http.Request, handler string) (from, text string, ok bool) {
	if !requirePost(w, r, handler) {
		return "", "", false
	}
	if s.assistant == nil || s.notifier == nil {
		slog.Warn(handler + ": service not ready")
		writeText(w, http.StatusServiceUnavailable, "Service Unavailable")
		return "", "", false
	}
	parseGatewayForm(r, handler)
	from = strings.TrimSpace(r.PostForm.Get("from"))
	text = strings.TrimSpace(r.PostForm.Get("text"))
	if from == "" || text == "" {
		slog.Warn(handler+": missing fields", "from_set", from != "", "text_set", text != "")
		writeText(w, http.StatusBadRequest, "Bad Request: Missing required fields.")
		return "", "", false
	}
	return from, text, true
}

func (s *Server) smsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	from, text, ok := s.inboundMessage(w, r, "Server.smsHandler")
	if !ok {
		return
	}
	reply, err := s.assistantReply(r.Context(), text)
	if err == nil {
		err = s.notifier.SendSMS(r.Context(), notify.KindAssistant, from, reply, "")
	}
	if err != nil {
		slog.Error("Server.smsHandler: failed to answer message", "from", from, "error", err)
		writeText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	slog.Info("Server.smsHandler: reply sent", "from", from)
	writeText(w, http.StatusOK, "Response sent successfully.")
}

func (s *Server) voiceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	from, text, ok := s.inboundMessage(w, r, "Server.voiceHandler")
	if !ok {
		return
	}
	reply, err := s.assistantReply(r.Context(), text)
	if err == nil {
		err = s.notifier.Call(r.Context(), notify.KindAssistant, from, reply)
	}
	if err != nil {
		slog.Error("Server.voiceHandler: failed to answer message", "from", from, "error", err)
		writeText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	slog.Info("Server.voiceHandler: call placed", "from", from)
	writeText(w, http.StatusOK, "Voice response initiated successfully.")
}

func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if s.ledger == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Receipts ledger not configured"))
		return
	}
	receipts, err := s.ledger.GetReceipts()
	if err != nil {
		slog.Error("Server.receiptsHandler: failed to read receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read receipts"))
		return
	}
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	status := map[string]bool{
		"ussd":     s.router != nil,
		"pathways": s.pathways != nil,
		"career":   s.career != nil,
		"ai":       s.assistant != nil,
		"sms":      s.notifier != nil,
		"ledger":   s.ledger != nil,
	}
	if !s.Ready() {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.NewAPIResponseBuilder().
			WithStatus(models.APIStatusError).WithMessage("not ready").WithResult(status).Build())
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}
