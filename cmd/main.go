package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"github.com/R-N/wa-bot/internal/dispatch"
	"github.com/R-N/wa-bot/internal/gateway"
	"github.com/R-N/wa-bot/internal/generation"
	"github.com/R-N/wa-bot/internal/index/qdrant"
	"github.com/R-N/wa-bot/internal/kb"
	"github.com/R-N/wa-bot/internal/modelserver"
	"github.com/R-N/wa-bot/internal/outbox"
	"github.com/R-N/wa-bot/internal/paramstore"
	"github.com/R-N/wa-bot/internal/responder"
	"github.com/R-N/wa-bot/internal/retrieval"
	"github.com/R-N/wa-bot/internal/session"
	"github.com/R-N/wa-bot/internal/webhook"
)

const redisPingTimeout = 2 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	// ---- Configuration (read only here) ----
	botID := mustEnv("BOT_ID")
	httpAddr := env("HTTP_ADDR", ":3000")
	gatewayURL := mustEnv("GATEWAY_URL")
	storeType := session.StoreType(env("SESSION_STORE", string(session.StoreTypeRedis)))
	sessionTTL := envDuration("SESSION_TTL", session.DefaultTTL)

	tokenParam := os.Getenv("LLM_TOKEN_PARAM")
	roleParam := os.Getenv("LLM_ROLE_PARAM")
	rewriteRoleParam := os.Getenv("REWRITE_ROLE_PARAM")

	// ---- AWS clients, only when something needs them ----
	needSSM := tokenParam != "" || roleParam != "" || rewriteRoleParam != ""
	var params *paramstore.Client
	var dynamoClient *awsdynamodb.Client
	if needSSM || storeType == session.StoreTypeDynamo {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			fatal(logger, "load AWS config", err)
		}
		if needSSM {
			params, err = paramstore.New(awsssm.NewFromConfig(cfg))
			if err != nil {
				fatal(logger, "create parameter store client", err)
			}
		}
		if storeType == session.StoreTypeDynamo {
			dynamoClient = awsdynamodb.NewFromConfig(cfg)
		}
	}

	// ---- Session layer ----
	store := buildStore(ctx, logger, storeType, dynamoClient)
	defer store.Close()

	sessions, err := session.NewManager(store, botID, sessionTTL, logger)
	if err != nil {
		fatal(logger, "create session manager", err)
	}

	// ---- Transport and outbox ----
	transport, err := gateway.New(gatewayURL)
	if err != nil {
		fatal(logger, "create gateway client", err)
	}
	queue, err := outbox.NewQueue(transport, envInt("OUTBOX_SIZE", outbox.DefaultQueueSize), outbox.WithLogger(logger))
	if err != nil {
		fatal(logger, "create outbox", err)
	}

	// ---- Responder chain ----
	blacklist := envList("MESSAGE_HANDLER_BLACKLIST")
	whitelist := envList("MESSAGE_HANDLER_WHITELIST")
	registry := dispatch.NewRegistry(logger)

	if handlerEnabled("llm", envBool("LLM_ENABLED", true), blacklist, whitelist) {
		rag, err := buildRAG(ctx, logger, params, sessions, queue, tokenParam, roleParam, rewriteRoleParam)
		if err != nil {
			fatal(logger, "create rag responder", err)
		}
		registry.Register("llm", envInt("LLM_PRIORITY", 0), rag)
	}
	if handlerEnabled("echo", envBool("ECHO_ENABLED", false), blacklist, whitelist) {
		echo, err := responder.NewEcho(sessions, queue)
		if err != nil {
			fatal(logger, "create echo responder", err)
		}
		registry.Register("echo", envInt("ECHO_PRIORITY", 0), echo)
	}
	if registry.Len() == 0 {
		fatal(logger, "start", errors.New("no message handlers registered, check blacklist/whitelist"))
	}

	pipeline, err := dispatch.NewPipeline(registry, sessions, transport, logger)
	if err != nil {
		fatal(logger, "create pipeline", err)
	}

	// ---- Webhook server ----
	server, err := webhook.NewServer(pipeline, queue,
		webhook.WithSecret(os.Getenv("WEBHOOK_SECRET")),
		webhook.WithLogger(logger))
	if err != nil {
		fatal(logger, "create webhook server", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go queue.Run(runCtx)

	httpServer := &http.Server{Addr: httpAddr, Handler: server.Handler()}
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("webhook server running", "addr", httpAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(logger, "serve http", err)
	}
}

// buildStore selects the session backend. An unreachable Redis degrades to
// the in-memory store; losing session durability only shortens
// conversational memory.
func buildStore(ctx context.Context, logger *slog.Logger, storeType session.StoreType, dynamoClient *awsdynamodb.Client) session.Store {
	switch storeType {
	case session.StoreTypeRedis:
		opts, err := redis.ParseURL(env("REDIS_URL", "redis://localhost:6379"))
		if err != nil {
			fatal(logger, "parse redis url", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unavailable, falling back to in-memory session store", "err", err)
			client.Close()
			store, _ := session.NewStore(session.StoreTypeMemory)
			return store
		}

		store, err := session.NewStore(session.StoreTypeRedis, session.WithRedisClient(client))
		if err != nil {
			fatal(logger, "create redis session store", err)
		}
		return store

	case session.StoreTypeDynamo:
		store, err := session.NewStore(session.StoreTypeDynamo,
			session.WithDynamo(dynamoClient, mustEnv("STATE_TABLE")))
		if err != nil {
			fatal(logger, "create dynamo session store", err)
		}
		return store

	default:
		store, err := session.NewStore(storeType)
		if err != nil {
			fatal(logger, "create session store", err)
		}
		return store
	}
}

func buildRAG(ctx context.Context, logger *slog.Logger, params *paramstore.Client,
	sessions *session.Manager, queue *outbox.Queue, tokenParam, roleParam, rewriteRoleParam string) (*responder.RAG, error) {

	modelOpts := []modelserver.Option{modelserver.WithModel(os.Getenv("LLM_MODEL"))}
	switch {
	case tokenParam != "":
		modelOpts = append(modelOpts, modelserver.WithTokenParameter(params, tokenParam))
	case os.Getenv("LLM_TOKEN") != "":
		modelOpts = append(modelOpts, modelserver.WithToken(os.Getenv("LLM_TOKEN")))
	}
	model, err := modelserver.NewClient(mustEnv("LLM_SERVER_URL"), modelOpts...)
	if err != nil {
		return nil, err
	}

	index, err := qdrant.New(qdrant.Config{
		URL:            env("QDRANT_URL", "http://localhost:6334"),
		CollectionName: env("QDRANT_COLLECTION", "knowledge_base"),
		APIKey:         os.Getenv("QDRANT_API_KEY"),
	})
	if err != nil {
		return nil, err
	}

	provider, err := kb.New(kb.Config{
		BaseURL:  mustEnv("KB_SERVER_URL"),
		SpaceID:  mustEnv("KB_SPACE_ID"),
		Email:    os.Getenv("KB_EMAIL"),
		Password: os.Getenv("KB_PASSWORD"),
	})
	if err != nil {
		return nil, err
	}

	engine, err := retrieval.NewEngine(model, index, provider,
		retrieval.WithLimit(envInt("SEARCH_LIMIT", retrieval.DefaultLimit)),
		retrieval.WithScoreThreshold(envFloat32("SCORE_THRESHOLD", retrieval.DefaultScoreThreshold)))
	if err != nil {
		return nil, err
	}

	role, err := generation.LoadRole(ctx, asGetter(params), roleParam, os.Getenv("LLM_ROLE_FILE"))
	if err != nil {
		return nil, err
	}
	answer, err := generation.NewClient(model, role)
	if err != nil {
		return nil, err
	}

	ragOpts := []responder.Option{responder.WithLogger(logger)}
	if envBool("RAG_TWO_STAGE", false) {
		rewriteRole, err := generation.LoadRole(ctx, asGetter(params), rewriteRoleParam, os.Getenv("REWRITE_ROLE_FILE"))
		if err != nil {
			return nil, err
		}
		rewriter, err := generation.NewClient(model, rewriteRole)
		if err != nil {
			return nil, err
		}
		ragOpts = append(ragOpts, responder.WithQueryRewriter(rewriter))
	}

	return responder.NewRAG(engine, answer, sessions, queue, ragOpts...)
}

// asGetter avoids handing LoadRole a non-nil interface wrapping a nil client.
func asGetter(params *paramstore.Client) generation.Getter {
	if params == nil {
		return nil
	}
	return params
}

// handlerEnabled applies the blacklist/whitelist rules: blacklisted names
// never run, a non-empty whitelist enables exactly its members (overriding
// the default), otherwise the default applies.
func handlerEnabled(name string, def bool, blacklist, whitelist []string) bool {
	for _, b := range blacklist {
		if b == name {
			return false
		}
	}
	if len(whitelist) > 0 {
		for _, w := range whitelist {
			if w == name {
				return true
			}
		}
		return false
	}
	return def
}

func fatal(logger *slog.Logger, op string, err error) {
	logger.Error("failed to "+op, "err", err)
	os.Exit(1)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat32(key string, def float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return def
	}
	return float32(f)
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
