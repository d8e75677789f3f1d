package deploy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/botdock/botdock/internal/cert"
	"github.com/botdock/botdock/internal/common"
	"github.com/botdock/botdock/internal/db"
	"github.com/botdock/botdock/internal/telegram"
	"github.com/botdock/botdock/pkg/docker"
	"github.com/botdock/botdock/pkg/logger"
	"github.com/botdock/botdock/pkg/validation"
)

// Runner assembles and executes deployment pipelines against one host.
type Runner struct {
	conf      *common.Config
	handle    *sql.DB
	certs     *cert.Manager
	registrar *telegram.Registrar
}

func NewRunner(conf *common.Config, handle *sql.DB, certs *cert.Manager, registrar *telegram.Registrar) *Runner {
	return &Runner{conf: conf, handle: handle, certs: certs, registrar: registrar}
}

// Request describes one deployment.
type Request struct {
	Bot      string
	Image    string
	BuildDir string
	EnvFile  string
	Token    string
	Secret   string

	SkipRegister bool
	DryRun       bool
	// Reporter overrides the default log reporter, nil keeps it.
	Reporter Reporter
}

// Deploy runs the pipeline for one bot. The returned results cover every
// step; the error is non-nil when an infrastructure step failed. Webhook
// registration trouble surfaces as a warn result, never as an error.
func (r *Runner) Deploy(ctx context.Context, req Request) ([]Result, error) {
	st, err := r.newState(req)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithDryRun(req.DryRun)}
	if req.Reporter != nil {
		opts = append(opts, WithReporter(req.Reporter))
	}
	pipeline := NewPipeline(r.buildSteps(), opts...)

	if req.DryRun {
		return pipeline.Run(ctx, st)
	}

	dep := &db.Deployment{
		ID:      uuid.New().String(),
		BotName: st.Bot,
		Image:   st.Image,
		Status:  "running",
	}
	if err := db.InsertDeployment(r.handle, dep); err != nil {
		return nil, fmt.Errorf("could not record deployment: %w", err)
	}

	results, runErr := pipeline.Run(ctx, st)
	if runErr != nil && st.Replaced {
		res := r.rollback(ctx, st)
		results = append(results, res)
		if req.Reporter != nil {
			req.Reporter.StepFinished(res)
		}
	}

	status := "succeeded"
	if runErr != nil {
		status = "failed"
	}
	if err := db.FinishDeployment(r.handle, dep.ID, status, marshalResults(results)); err != nil {
		logger.Error("Could not record deployment outcome", "id", dep.ID, "error", err)
	}

	if runErr == nil {
		if err := r.saveBotRow(st); err != nil {
			return results, fmt.Errorf("bot deployed but could not update the registry: %w", err)
		}
	}
	return results, runErr
}

// newState validates the request and resolves the deployment inputs. The
// bot env file is read here so a bad file fails before anything runs.
func (r *Runner) newState(req Request) (*State, error) {
	if err := validation.ValidateBotName(req.Bot); err != nil {
		return nil, err
	}

	if req.Image == "" && req.BuildDir == "" {
		return nil, errors.New("nothing to deploy: pass --image or --build")
	}
	image := req.Image
	if image == "" {
		image = fmt.Sprintf("botdock/%s:latest", req.Bot)
	}
	if err := validation.ValidateImageRef(image); err != nil {
		return nil, err
	}

	st := &State{
		Bot:          req.Bot,
		Image:        image,
		BuildDir:     req.BuildDir,
		EnvFile:      req.EnvFile,
		Domain:       r.conf.Proxy.Domain,
		Token:        req.Token,
		Secret:       req.Secret,
		SkipRegister: req.SkipRegister,
	}

	if req.EnvFile != "" {
		pairs, err := godotenv.Read(req.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("could not read env file %s: %w", req.EnvFile, err)
		}
		keys := make([]string, 0, len(pairs))
		for k := range pairs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			st.Env = append(st.Env, k+"="+pairs[k])
		}
		if st.Token == "" {
			st.Token = pairs["BOT_TOKEN"]
		}
		if st.Secret == "" {
			st.Secret = pairs["BOT_SECRET_TOKEN"]
		}
	}

	if st.Token == "" {
		return nil, errors.New("no bot token: pass --token or put BOT_TOKEN in the env file")
	}
	if st.Secret != "" {
		if err := validation.ValidateSecretToken(st.Secret); err != nil {
			return nil, err
		}
	}
	if st.Domain == "" {
		return nil, errors.New("no public domain configured, set proxy.domain in config.yml or BOTDOCK_DOMAIN")
	}

	_, err := db.GetBot(r.handle, st.Bot)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		st.FirstDeploy = true
	case err != nil:
		return nil, fmt.Errorf("could not read bot registry: %w", err)
	}

	return st, nil
}

func (r *Runner) buildSteps() []Step {
	return []Step{
		&ensureNetworkStep{network: r.conf.ContainerEngine.Network},
		Retry(&resolveImageStep{}, 3, time.Second),
		&recreateContainerStep{conf: r.conf},
		Retry(newWaitHealthyStep(r.conf), 2, r.conf.Telegram.HealthIntervalDuration()),
		&ensureCertStep{handle: r.handle, manager: r.certs, domain: r.conf.Proxy.Domain},
		&registerWebhookStep{registrar: r.registrar},
	}
}

func (r *Runner) saveBotRow(st *State) error {
	return db.SaveBot(r.handle, &db.Bot{
		Name:        st.Bot,
		Image:       st.Image,
		ContainerID: st.NewContainer,
		Token:       st.Token,
		SecretToken: st.Secret,
		WebhookURL:  r.conf.Proxy.WebhookURL(st.Bot),
		Active:      true,
	})
}

// rollback restores the previous container after a failed replacement. The
// outcome rides along in the results as a synthetic step.
func (r *Runner) rollback(ctx context.Context, st *State) Result {
	start := time.Now()
	err := r.restorePrevious(ctx, st)
	res := Result{Step: "rollback", Elapsed: time.Since(start)}

	if err != nil {
		res.Status = StatusFailed
		res.Detail = err.Error()
		res.Err = err
		logger.Error("Rollback failed, bot is down", "bot", st.Bot, "error", err)
		return res
	}

	res.Status = StatusOK
	res.Detail = fmt.Sprintf("restored previous image %s", shortID(st.PrevImage))
	logger.Warn("Deployment failed, restored previous container",
		"bot", st.Bot,
		"image", shortID(st.PrevImage))
	return res
}

func (r *Runner) restorePrevious(ctx context.Context, st *State) error {
	if st.PrevImage == "" {
		return errors.New("no previous image recorded")
	}

	// Which container exists depends on where the pipeline broke.
	if st.NewContainer != "" {
		if _, err := docker.StopContainerGracefully(ctx, st.NewContainer, stopTimeout); err != nil {
			logger.Debug("Could not stop failed container", "error", err)
		}
		if err := docker.RemoveContainer(ctx, st.NewContainer); err != nil {
			logger.Debug("Could not remove failed container", "error", err)
		}
	} else if leftover, err := docker.FindContainerByName(ctx, st.Bot); err == nil && leftover != nil {
		if err := docker.RemoveContainer(ctx, leftover.ID); err != nil {
			return fmt.Errorf("could not clear the failed container: %w", err)
		}
	}

	id, err := docker.CreateBotContainer(ctx, docker.BotContainerParams{
		Name:        st.Bot,
		Image:       st.PrevImage,
		Network:     r.conf.ContainerEngine.Network,
		Port:        r.conf.ContainerEngine.BotPort,
		Environment: containerEnv(r.conf, st),
	})
	if err != nil {
		return fmt.Errorf("could not recreate previous container: %w", err)
	}
	return docker.StartContainer(ctx, id)
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
