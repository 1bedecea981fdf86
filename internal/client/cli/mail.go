package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jay/dadmail-client/internal/client/models"
)

const dateLayout = "Jan 2 3:04 PM"

// Inbox lists one page of messages: "inbox [page] [unread]".
func (a *App) Inbox(ctx context.Context, args []string) error {
	page, unread := 1, false
	for _, arg := range args {
		if strings.EqualFold(arg, "unread") {
			unread = true
			continue
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			printlnFn("Usage: inbox [page] [unread]")
			return nil
		}
		page = n
	}

	list, err := a.mail.Inbox(ctx, page, unread)
	if err != nil {
		return err
	}
	if len(list.Emails) == 0 {
		printlnFn("No messages.")
		return nil
	}
	printList(list)
	return nil
}

// Read shows one message: "read <id>".
func (a *App) Read(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printlnFn("Usage: read <id>")
		return nil
	}
	m, err := a.mail.Message(ctx, args[0])
	if err != nil {
		return err
	}
	printlnFn("From:   ", m.From)
	printlnFn("To:     ", strings.Join(m.To, ", "))
	printlnFn("Date:   ", m.ReceivedAt.Local().Format(dateLayout))
	printlnFn("Subject:", m.Subject)
	printlnFn()
	printlnFn(m.Body)
	return nil
}

// Category lists messages in one category: "category <name>".
func (a *App) Category(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printlnFn("Usage: category <name>")
		return nil
	}
	list, err := a.mail.Category(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(list.Emails) == 0 {
		printlnFn("No messages in this category.")
		return nil
	}
	printList(list)
	return nil
}

// Send walks the user through writing a message.
func (a *App) Send(ctx context.Context) error {
	to, err := getSimpleText(a.reader, "Who is this message for? (separate several addresses with commas)", os.Stdout)
	if err != nil {
		return err
	}
	subject, err := getSimpleText(a.reader, "Subject", os.Stdout)
	if err != nil {
		return err
	}
	body, err := getMultiline(a.reader, "Message", os.Stdout)
	if err != nil {
		return err
	}
	sent, err := a.mail.Send(ctx, models.Draft{To: splitList(to), Subject: subject, Body: body})
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Sent to %s.", strings.Join(sent.To, ", ")))
	return nil
}

func printList(list *models.EmailList) {
	for _, m := range list.Emails {
		marker := " "
		if !m.Read {
			marker = "*"
		}
		printlnFn(fmt.Sprintf("%s %s  %-24s  %s  [%s]", marker, m.ReceivedAt.Local().Format(dateLayout), truncate(m.From, 24), m.Subject, m.ID))
	}
	printlnFn(fmt.Sprintf("%d message(s) shown of %d. Unread messages are marked with *.", len(list.Emails), list.Total))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
