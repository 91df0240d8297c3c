package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/machikart/internal/events"
	"github.com/example/machikart/internal/models"
)

const telegramAPI = "https://api.telegram.org"

// TelegramService notifies the shop's operator chat about new orders.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
	log         *zap.Logger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, log *zap.Logger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     telegramAPI,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Enabled reports whether both the bot token and the chat are configured.
func (s *TelegramService) Enabled() bool {
	return s.botToken != "" && s.adminChatID != ""
}

// SendToAdmin sends an HTML message to the operator chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if !s.Enabled() {
		s.log.Debug("telegram not configured, message dropped")
		return nil
	}

	body, err := json.Marshal(telegramMessage{ChatID: s.adminChatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("telegram send failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Warn("telegram unexpected status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// Publish implements events.Publisher. Only new orders are announced.
func (s *TelegramService) Publish(ctx context.Context, ev events.Event) error {
	if ev.Type != events.OrderCreated || ev.Order == nil {
		return nil
	}
	return s.SendToAdmin(ctx, FormatNewOrder(*ev.Order))
}

// FormatPrice formats an amount in rupees with thousand separators.
func FormatPrice(amount float64) string {
	str := fmt.Sprintf("%.2f", amount)
	whole, frac, _ := strings.Cut(str, ".")

	var result strings.Builder
	length := len(whole)
	for i, digit := range whole {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	if frac != "00" {
		result.WriteString("." + frac)
	}
	return "₹" + result.String()
}

// FormatNewOrder renders the operator notification for an order.
func FormatNewOrder(order models.Order) string {
	var items strings.Builder
	for i, item := range order.Items {
		name := html.EscapeString(item.FishName)
		if item.Cleaning {
			name += " (cleaned)"
		}
		fmt.Fprintf(&items, "%d. <b>%s</b>\n   %g kg x %s/kg\n", i+1, name, item.Quantity, FormatPrice(item.PricePerKg))
	}

	message := fmt.Sprintf(`<b>🐟 NEW ORDER</b>
<b>Order:</b> %s
<b>Customer:</b> %s
<b>Phone:</b> %s
<b>Address:</b> %s
<b>Items:</b>
%s
<b>Total:</b> %s
<b>Payment:</b> %s
━━━━━━━━━━━━━━━━━━`,
		html.EscapeString(order.ID),
		html.EscapeString(order.CustomerName),
		html.EscapeString(order.PhoneNumber),
		html.EscapeString(order.DeliveryAddress),
		items.String(),
		FormatPrice(order.TotalAmount),
		order.PaymentMethod,
	)
	return strings.TrimSpace(message)
}
