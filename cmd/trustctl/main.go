// trustctl is a small operator CLI for the AP2 mandate service. It talks to
// the service through the Go SDK and prints JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/leo2971998/trustagent/sdk/go/ap2"
)

const usage = `usage: trustctl <command> [flags]

commands:
  mandate create   --kind <intent|cart|payment> [kind flags]
  mandate list     [--status <pending|approved|executed|cancelled>]
  mandate get      --id <mandate_id>
  mandate approve  --id <mandate_id>
  mandate execute  --id <mandate_id>
  mandate cancel   --id <mandate_id>
  classify         --text <free text>
  summary
  stats
  cleanup

environment:
  TRUSTAGENT_BASE_URL  service base URL (default http://localhost:8090/api/ap2)
  TRUSTAGENT_TOKEN     bearer token`

func main() {
	if len(os.Args) < 2 {
		fail(usage)
	}
	switch os.Args[1] {
	case "mandate":
		runMandate(os.Args[2:])
	case "classify":
		runClassify(os.Args[2:])
	case "summary":
		runSummary()
	case "stats":
		runStats()
	case "cleanup":
		runCleanup()
	default:
		fail(usage)
	}
}

func newClient() *ap2.Client {
	base := os.Getenv("TRUSTAGENT_BASE_URL")
	if base == "" {
		base = "http://localhost:8090/api/ap2"
	}
	return ap2.NewClient(base, os.Getenv("TRUSTAGENT_TOKEN"))
}

func runMandate(args []string) {
	if len(args) < 1 {
		fail(usage)
	}
	switch args[0] {
	case "create":
		runCreate(args[1:])
	case "list":
		runList(args[1:])
	case "get":
		runGet(args[1:])
	case "approve", "execute", "cancel":
		runTransition(args[0], args[1:])
	default:
		fail(usage)
	}
}

func runCreate(args []string) {
	fs := flag.NewFlagSet("mandate create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	kind := fs.String("kind", "", "mandate kind: intent, cart, or payment")
	amount := fs.Float64("amount", 0, "amount in dollars")
	intentType := fs.String("intent-type", "savings_goal", "intent type")
	frequency := fs.String("frequency", "monthly", "intent frequency")
	description := fs.String("description", "", "intent description")
	itemName := fs.String("item", "", "cart item name")
	subscriptionType := fs.String("subscription-type", "monthly", "cart subscription type")
	purpose := fs.String("purpose", "", "payment purpose")
	urgency := fs.String("urgency", "normal", "payment urgency: normal or emergency")
	idemKey := fs.String("idempotency-key", "", "idempotency key")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	client := newClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var m *ap2.Mandate
	var err error
	switch *kind {
	case ap2.KindIntent:
		m, err = client.CreateIntent(ctx, ap2.IntentRequest{
			IntentType:  *intentType,
			Amount:      *amount,
			Frequency:   *frequency,
			Description: *description,
		}, *idemKey)
	case ap2.KindCart:
		if strings.TrimSpace(*itemName) == "" {
			fail("--item is required for cart mandates")
		}
		m, err = client.CreateCart(ctx, ap2.CartRequest{
			Items:            []ap2.CartItem{{Name: *itemName, Price: *amount}},
			SubscriptionType: *subscriptionType,
		}, *idemKey)
	case ap2.KindPayment:
		m, err = client.CreatePayment(ctx, ap2.PaymentRequest{
			Amount:  *amount,
			Purpose: *purpose,
			Urgency: *urgency,
		}, *idemKey)
	default:
		fail("--kind must be intent, cart, or payment")
	}
	if err != nil {
		fail(err.Error())
	}
	printJSON(m)
}

func runList(args []string) {
	fs := flag.NewFlagSet("mandate list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	status := fs.String("status", "", "filter by status")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mandates, err := newClient().ListMandates(ctx, *status)
	if err != nil {
		fail(err.Error())
	}
	printJSON(map[string]any{"mandates": mandates, "count": len(mandates)})
}

func runGet(args []string) {
	id := parseID("mandate get", args)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	m, err := newClient().GetMandate(ctx, id)
	if err != nil {
		fail(err.Error())
	}
	printJSON(m)
}

func runTransition(event string, args []string) {
	id := parseID("mandate "+event, args)
	client := newClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var res *ap2.TransitionResult
	var err error
	switch event {
	case "approve":
		res, err = client.ApproveMandate(ctx, id)
	case "execute":
		res, err = client.ExecuteMandate(ctx, id)
	case "cancel":
		res, err = client.CancelMandate(ctx, id)
	}
	if err != nil {
		fail(err.Error())
	}
	printJSON(res)
}

func runClassify(args []string) {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	text := fs.String("text", "", "free text to classify")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if strings.TrimSpace(*text) == "" {
		fail("--text is required")
	}
	c := ap2.Classify(*text)
	if c == nil {
		printJSON(map[string]any{"matched": false})
		return
	}
	out := map[string]any{"matched": true, "kind": c.Kind}
	switch c.Kind {
	case ap2.KindIntent:
		out["payload"] = c.Intent
	case ap2.KindCart:
		out["payload"] = c.Cart
	case ap2.KindPayment:
		out["payload"] = c.Payment
	}
	printJSON(out)
}

func runSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := newClient().Summary(ctx)
	if err != nil {
		fail(err.Error())
	}
	printJSON(s)
}

func runStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := newClient().Stats(ctx)
	if err != nil {
		fail(err.Error())
	}
	printJSON(s)
}

func runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := newClient().Cleanup(ctx)
	if err != nil {
		fail(err.Error())
	}
	printJSON(map[string]any{"cancelled": n})
}

func parseID(name string, args []string) string {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	id := fs.String("id", "", "mandate id")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if strings.TrimSpace(*id) == "" {
		fail("--id is required")
	}
	return *id
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail(err.Error())
	}
	fmt.Println(string(out))
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
