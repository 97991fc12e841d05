package report

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// captureSender records delivered messages.
type captureSender struct {
	messages []string
	err      error
}

var _ Sender = (*captureSender)(nil)

func (c *captureSender) Send(text string) error {
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, text)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestTradeOpenedMessage(t *testing.T) {
	sender := &captureSender{}
	reporter := NewReporter(sender, nil, quietLogger())

	reporter.TradeOpened("moderate", models.Prediction{
		ContractSymbol:    "RTX260320C00125000",
		OptionType:        models.OptionTypeCall,
		Contracts:         2,
		EntryPrice:        2.00,
		Direction:         models.DirectionBullish,
		Confidence:        0.72,
		ProfitTargetPrice: 3.00,
		StopLossPrice:     1.50,
		DaysToExpiry:      21,
		TotalCost:         401.80,
	}, 4598.20)

	if len(sender.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(sender.messages))
	}
	msg := sender.messages[0]
	for _, want := range []string{"moderate", "RTX260320C00125000", "x2", "$2.00",
		"bullish", "72%", "$3.00", "$1.50", "$401.80", "$4598.20"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestExitActionsMessage(t *testing.T) {
	sender := &captureSender{}
	reporter := NewReporter(sender, nil, quietLogger())

	reporter.ExitActions("aggressive", []string{
		"PROFIT_TARGET: closed p1 (2 x RTX260320C00125000)",
		"STOP_LOSS: closed p2 (1 x RTX260320P00120000)",
	})

	if len(sender.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(sender.messages))
	}
	msg := sender.messages[0]
	if !strings.Contains(msg, "aggressive") ||
		!strings.Contains(msg, "PROFIT_TARGET") ||
		!strings.Contains(msg, "STOP_LOSS") {
		t.Errorf("unexpected message:\n%s", msg)
	}
}

func TestSendFailureDoesNotPanic(t *testing.T) {
	sender := &captureSender{err: errors.New("telegram down")}
	reporter := NewReporter(sender, nil, quietLogger())

	// Delivery failures are swallowed; the trading loop must never notice.
	reporter.ExitActions("test", []string{"MANUAL: closed p1 (1 x RTX260320C00125000)"})
	reporter.DailyDigest(context.Background())
}

func TestNilSender(t *testing.T) {
	reporter := NewReporter(nil, nil, quietLogger())
	reporter.TradeOpened("test", models.Prediction{}, 0)
}

func TestLogSender(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	sender := &LogSender{Logger: logger}
	if err := sender.Send("hello"); err != nil {
		t.Errorf("LogSender.Send: %v", err)
	}
}
