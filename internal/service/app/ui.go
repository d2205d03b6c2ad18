package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"p2p_trade/internal/model"
	"p2p_trade/internal/service/chat"
	"p2p_trade/internal/utils/log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const refreshEvery = time.Second

type dashboard struct {
	root     *tview.Flex
	orders   *tview.Table
	disputes *tview.Table
	chatbox  *tview.TextView
	input    *tview.InputField
	status   *tview.TextView

	// selected chat, admin only
	disputeID string
	party     model.Party
}

func newDashboard(a *App) *dashboard {
	d := &dashboard{party: model.PartyBuyer}

	d.orders = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	d.orders.SetBorder(true).SetTitle(" Orders ")

	d.disputes = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	d.disputes.SetBorder(true).SetTitle(" Disputes ")

	d.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	d.chatbox.SetBorder(true).SetTitle(" Chat ")

	d.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	d.input.SetBorder(true).SetTitle(" New Message ")

	d.status = tview.NewTextView().SetDynamicColors(true)
	fmt.Fprintf(d.status, "identity [yellow]%s[-]", a.IdentityPubKey())

	d.disputes.SetSelectedFunc(func(row, _ int) {
		cell := d.disputes.GetCell(row, 0)
		if row == 0 || cell == nil {
			return
		}
		d.disputeID = cell.Text
		d.chatbox.SetTitle(fmt.Sprintf(" Chat %s (%s) ", d.disputeID, d.party))
		a.Shared.ClearPending(chat.TranscriptKey(d.disputeID, d.party))
		if a.Admin {
			a.app.SetFocus(d.input)
		}
	})

	d.input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := d.input.GetText()
			if text == "" || d.disputeID == "" {
				return
			}
			disputeID, party := d.disputeID, d.party
			go func(msg string) {
				ctx, cancel := context.WithTimeout(context.Background(), a.Timeout)
				defer cancel()
				if err := a.AdminSendChat(ctx, disputeID, party, msg); err != nil {
					log.Error("send chat failed", zap.String("dispute", disputeID), zap.Error(err))
					a.app.QueueUpdateDraw(func() {
						d.status.SetText("[red]send failed: " + tview.Escape(err.Error()) + "[-]")
					})
					return
				}
				a.app.QueueUpdateDraw(func() {
					d.input.SetText("")
				})
			}(text)
		case tcell.KeyTab:
			if d.party == model.PartyBuyer {
				d.party = model.PartySeller
			} else {
				d.party = model.PartyBuyer
			}
			d.chatbox.SetTitle(fmt.Sprintf(" Chat %s (%s) ", d.disputeID, d.party))
		case tcell.KeyEscape:
			a.app.SetFocus(d.disputes)
		}
	})

	tables := tview.NewFlex().
		AddItem(d.orders, 0, 2, true).
		AddItem(d.disputes, 0, 1, false)

	d.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tables, 0, 2, true).
		AddItem(d.chatbox, 0, 1, false).
		AddItem(d.input, 3, 0, false).
		AddItem(d.status, 1, 0, false)

	d.root.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyCtrlO {
			a.app.SetFocus(d.orders)
			return nil
		}
		if ev.Key() == tcell.KeyCtrlD {
			a.app.SetFocus(d.disputes)
			return nil
		}
		return ev
	})
	return d
}

func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			orders := a.Shared.Orders()
			disputes := a.Shared.Disputes()
			a.app.QueueUpdateDraw(func() {
				a.ui.renderOrders(orders)
				a.ui.renderDisputes(a, disputes)
				a.ui.renderChat(a)
			})
		}
	}
}

func header(t *tview.Table, cols ...string) {
	for i, c := range cols {
		t.SetCell(0, i, tview.NewTableCell(c).SetTextColor(tcell.ColorYellow).SetSelectable(false))
	}
}

func (d *dashboard) renderOrders(orders []model.Order) {
	d.orders.Clear()
	header(d.orders, "ID", "Kind", "Status", "Fiat", "Amount", "Methods", "Premium")
	for i, o := range orders {
		amount := strconv.FormatInt(o.FiatAmount, 10)
		if o.IsRange() {
			amount = fmt.Sprintf("%d-%d", *o.MinAmount, *o.MaxAmount)
		}
		row := []string{o.ID, string(o.Kind), string(o.Status), o.FiatCode, amount,
			strings.Join(o.PaymentMethods, ","), strconv.FormatInt(o.Premium, 10) + "%"}
		for j, v := range row {
			d.orders.SetCell(i+1, j, tview.NewTableCell(v))
		}
	}
}

func (d *dashboard) renderDisputes(a *App, disputes []model.Dispute) {
	d.disputes.Clear()
	header(d.disputes, "ID", "Status", "New")
	for i, ds := range disputes {
		pending := a.Shared.Pending(chat.TranscriptKey(ds.ID, model.PartyBuyer)) +
			a.Shared.Pending(chat.TranscriptKey(ds.ID, model.PartySeller))
		d.disputes.SetCell(i+1, 0, tview.NewTableCell(ds.ID))
		d.disputes.SetCell(i+1, 1, tview.NewTableCell(ds.Status))
		if pending > 0 {
			d.disputes.SetCell(i+1, 2, tview.NewTableCell(strconv.Itoa(pending)).SetTextColor(tcell.ColorRed))
		}
	}
}

func (d *dashboard) renderChat(a *App) {
	if d.disputeID == "" {
		return
	}
	me := a.IdentityPubKey()
	key := chat.TranscriptKey(d.disputeID, d.party)
	a.Shared.ClearPending(key)
	d.chatbox.Clear()
	for _, m := range a.Shared.Transcript(key) {
		ts := time.Unix(m.CreatedAt, 0).Format("01-02 15:04")
		text := tview.Escape(m.Text)
		if att, ok := model.ParseAttachment(m.Text); ok {
			text = fmt.Sprintf("[blue]attachment %s (%s)[-]", tview.Escape(att.Filename), tview.Escape(att.MimeType))
		}
		if m.Sender == me {
			fmt.Fprintf(d.chatbox, "%s [yellow]You:[-] %s\n", ts, text)
		} else {
			fmt.Fprintf(d.chatbox, "%s [green]%s:[-] %s\n", ts, d.party, text)
		}
	}
	d.chatbox.ScrollToEnd()
}
