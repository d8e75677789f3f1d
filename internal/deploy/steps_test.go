package deploy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botdock/botdock/internal/cert"
	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/internal/telegram"
)

func TestContainerEnvDaemonKeysWin(t *testing.T) {
	conf := testRunnerConfig(t)
	st := &State{
		Bot:    "order_bot",
		Token:  "123456:FRESH-TOKEN",
		Secret: "s3cret-token",
		Env:    []string{"APP_MODE=prod", "BOT_TOKEN=123456:STALE-TOKEN"},
	}

	env := containerEnv(conf, st)
	assert.Equal(t, []string{
		"APP_MODE=prod",
		"BOT_TOKEN=123456:STALE-TOKEN",
		"BOT_NAME=order_bot",
		"BOT_PORT=8080",
		"BOT_TOKEN=123456:FRESH-TOKEN",
		"WEBHOOK_URL=https://bots.example.com/webhook/order_bot",
		"BOT_SECRET_TOKEN=s3cret-token",
	}, env, "daemon-owned keys come after the env file so the engine lets them win")
}

func TestContainerEnvWithoutSecret(t *testing.T) {
	conf := testRunnerConfig(t)
	env := containerEnv(conf, &State{Bot: "order_bot", Token: "123456:T"})
	for _, pair := range env {
		assert.NotContains(t, pair, "BOT_SECRET_TOKEN")
	}
}

func TestStepPlans(t *testing.T) {
	conf := testRunnerConfig(t)
	st := &State{
		Bot:    "order_bot",
		Image:  "ghcr.io/acme/order-bot:v3",
		Domain: "bots.example.com",
	}

	assert.Equal(t,
		`create container network "botdock" if it does not exist`,
		(&ensureNetworkStep{network: "botdock"}).Plan(st))

	assert.Equal(t,
		`pull image "ghcr.io/acme/order-bot:v3"`,
		(&resolveImageStep{}).Plan(st))

	withBuild := *st
	withBuild.BuildDir = "./bots/order"
	assert.Equal(t,
		`build image "ghcr.io/acme/order-bot:v3" from ./bots/order`,
		(&resolveImageStep{}).Plan(&withBuild))

	assert.Equal(t,
		`replace container "order_bot" with one running ghcr.io/acme/order-bot:v3`,
		(&recreateContainerStep{conf: conf}).Plan(st))

	assert.Equal(t,
		"wait for http://order_bot:8080/health to answer 200",
		newWaitHealthyStep(conf).Plan(st))

	certStep := &ensureCertStep{domain: "bots.example.com"}
	assert.Equal(t, "skip, not a first deploy", certStep.Plan(st))
	first := *st
	first.FirstDeploy = true
	assert.Equal(t, "ensure a certificate for bots.example.com exists", certStep.Plan(&first))

	regStep := &registerWebhookStep{}
	assert.Equal(t,
		"register https://bots.example.com/webhook/order_bot with Telegram",
		regStep.Plan(st))
	noReg := *st
	noReg.SkipRegister = true
	assert.Equal(t, "skip, registration disabled", regStep.Plan(&noReg))
}

func TestEnsureCertSkips(t *testing.T) {
	handle, _, err := db.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })

	step := &ensureCertStep{handle: handle, domain: "bots.example.com"}

	t.Run("not a first deploy", func(t *testing.T) {
		err := step.Run(context.Background(), &State{FirstDeploy: false})
		var skip *skipError
		require.ErrorAs(t, err, &skip)
		assert.Equal(t, "not a first deploy", skip.reason)
	})

	t.Run("certificate already valid", func(t *testing.T) {
		require.NoError(t, db.SetCertificateState(handle, "bots.example.com", string(cert.StateValid)))

		err := step.Run(context.Background(), &State{FirstDeploy: true})
		var skip *skipError
		require.ErrorAs(t, err, &skip)
		assert.Equal(t, "certificate already valid", skip.reason)
	})
}

func TestRegisterWebhookSkipFlag(t *testing.T) {
	step := &registerWebhookStep{}
	err := step.Run(context.Background(), &State{SkipRegister: true})

	var skip *skipError
	require.ErrorAs(t, err, &skip)
	assert.Equal(t, "registration disabled", skip.reason)
}

func TestRegisterWebhookDowngradesFailures(t *testing.T) {
	conf := testRunnerConfig(t)

	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))
	t.Cleanup(health.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	t.Cleanup(api.Close)

	reg := telegram.NewRegistrar(conf)
	reg.HealthURL = func(string) string { return health.URL }
	reg.NewClient = func(token string) *telegram.Client {
		return telegram.NewClient(token, api.URL)
	}

	step := &registerWebhookStep{registrar: reg}
	err := step.Run(context.Background(), &State{
		Bot:    "order_bot",
		Domain: "bots.example.com",
		Token:  "123456:TEST-TOKEN",
	})

	var warn *warnError
	require.ErrorAs(t, err, &warn)
	var regErr *telegram.RegistrationError
	assert.ErrorAs(t, err, &regErr)
	assert.NotContains(t, err.Error(), "123456:TEST-TOKEN")
}

func TestRegisterWebhookSucceeds(t *testing.T) {
	conf := testRunnerConfig(t)

	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))
	t.Cleanup(health.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(api.Close)

	reg := telegram.NewRegistrar(conf)
	reg.HealthURL = func(string) string { return health.URL }
	reg.NewClient = func(token string) *telegram.Client {
		return telegram.NewClient(token, api.URL)
	}

	step := &registerWebhookStep{registrar: reg}
	err := step.Run(context.Background(), &State{
		Bot:    "order_bot",
		Domain: "bots.example.com",
		Token:  "123456:TEST-TOKEN",
	})
	assert.NoError(t, err)
}
