package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leo2971998/trustagent/pkg/authn"
	"github.com/leo2971998/trustagent/pkg/db"
	"github.com/leo2971998/trustagent/pkg/trust"
	"github.com/leo2971998/trustagent/services/ap2/internal/api"
	"github.com/leo2971998/trustagent/services/ap2/internal/idempotency"
	"github.com/leo2971998/trustagent/services/ap2/internal/store"
)

func main() {
	secret := os.Getenv("AP2_SIGNING_SECRET")
	if secret == "" {
		log.Fatal("AP2_SIGNING_SECRET is required")
	}
	signer, err := trust.NewSigner(secret)
	if err != nil {
		log.Fatal(err)
	}

	var st store.Store
	var sessions authn.SessionStore
	if os.Getenv("DATABASE_URL") != "" {
		pool := db.MustConnect()
		st = store.NewPostgres(pool)
		sessions = &authn.PGSessionStore{DB: pool}
	} else {
		// No database configured: in-memory mode for local development.
		mem := store.NewMemory()
		devSessions := authn.NewMemorySessionStore()
		devToken := os.Getenv("AP2_DEV_TOKEN")
		if devToken == "" {
			devToken = "dev-token"
		}
		devSessions.AddToken(devToken, "usr_dev", time.Now().Add(24*time.Hour))
		log.Printf("no DATABASE_URL set; using in-memory store with dev token %q", devToken)
		st = mem
		sessions = devSessions
	}

	h := api.NewHandler(st, sessions, signer, idempotency.NewMemory())

	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8090"
	}

	r := chi.NewRouter()
	r.Mount("/api/ap2", h.Router())

	fmt.Println("ap2 service listening on :" + port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
