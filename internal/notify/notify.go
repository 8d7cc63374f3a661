package notify

import (
	"fmt"
	"log"
	"strings"
	"time"

	"robot_crypt/internal/domain"

	tele "gopkg.in/telebot.v3"
)

// Notifier 交易事件通知，发送失败只记日志，不影响交易流程
type Notifier interface {
	TradeOpened(pos domain.Position)
	TradeClosed(trade domain.ClosedTrade, stats domain.RunningStats)
	Alert(message string)
}

// LogNotifier 只写日志
type LogNotifier struct{}

func (LogNotifier) TradeOpened(pos domain.Position) {
	log.Printf("[通知] %s", strings.ReplaceAll(FormatOpened(pos), "\n", " | "))
}

func (LogNotifier) TradeClosed(trade domain.ClosedTrade, stats domain.RunningStats) {
	log.Printf("[通知] %s", strings.ReplaceAll(FormatClosed(trade, stats), "\n", " | "))
}

func (LogNotifier) Alert(message string) {
	log.Printf("[通知] ⚠ %s", message)
}

// Telegram 通过 Bot 向指定会话推送
type Telegram struct {
	bot  *tele.Bot
	chat tele.ChatID
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, _ tele.Context) { log.Printf("[通知] telegram: %v", err) },
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	log.Printf("[通知] Telegram 已连接 @%s", b.Me.Username)
	return &Telegram{bot: b, chat: tele.ChatID(chatID)}, nil
}

func (t *Telegram) TradeOpened(pos domain.Position) {
	t.send(FormatOpened(pos))
}

func (t *Telegram) TradeClosed(trade domain.ClosedTrade, stats domain.RunningStats) {
	t.send(FormatClosed(trade, stats))
}

func (t *Telegram) Alert(message string) {
	t.send("⚠️ " + message)
}

func (t *Telegram) send(msg string) {
	if _, err := t.bot.Send(t.chat, msg); err != nil {
		log.Printf("[通知] ✘ Telegram 发送失败: %v", err)
	}
}

// Multi 依次转发给多个通知器
type Multi []Notifier

func (m Multi) TradeOpened(pos domain.Position) {
	for _, n := range m {
		n.TradeOpened(pos)
	}
}

func (m Multi) TradeClosed(trade domain.ClosedTrade, stats domain.RunningStats) {
	for _, n := range m {
		n.TradeClosed(trade, stats)
	}
}

func (m Multi) Alert(message string) {
	for _, n := range m {
		n.Alert(message)
	}
}

func FormatOpened(pos domain.Position) string {
	msg := fmt.Sprintf("📈 开仓 %s [%s]\n数量: %.8g\n成本: %.8g", pos.Symbol, pos.Strategy, pos.Quantity, pos.EntryPrice)
	if pos.TargetPrice > 0 {
		msg += fmt.Sprintf("\n止盈: %.8g\n止损: %.8g", pos.TargetPrice, pos.StopPrice)
	}
	return msg + "\n⏰ " + pos.EntryTime.Format("2006-01-02 15:04:05")
}

func FormatClosed(trade domain.ClosedTrade, stats domain.RunningStats) string {
	emoji := "✅"
	if trade.NetReturn <= 0 {
		emoji = "🔻"
	}
	return fmt.Sprintf("%s 平仓 %s (%s)\n%.8g → %.8g\n收益: %+.2f%% (%+.4f)\n持仓: %s\n资金: %.2f  连亏: %d",
		emoji, trade.Symbol, trade.Reason,
		trade.EntryPrice, trade.ExitPrice,
		trade.NetReturn*100, trade.PnL,
		trade.HoldFor.Round(time.Second),
		stats.CurrentCapital, stats.ConsecutiveLosses,
	)
}
