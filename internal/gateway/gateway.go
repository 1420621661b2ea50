// Package gateway is the dispatcher between the client-facing contract
// and the upstream adapters. Each request walks one path: validate,
// resolve profile (text kinds), invoke adapter, normalize. First
// failure terminates the walk; adapters never see invalid requests.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"muse-api/internal/media"
	"muse-api/internal/profiles"
	"muse-api/internal/shared"
	"muse-api/internal/stream"
	"muse-api/internal/upstream"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Gateway struct {
	Chat   *upstream.ChatClient
	Speech *upstream.SpeechClient
	Redis  *redis.Client
	Log    *zap.SugaredLogger
}

func New(chat *upstream.ChatClient, speech *upstream.SpeechClient, redisClient *redis.Client, log *zap.SugaredLogger) *Gateway {
	return &Gateway{
		Chat:   chat,
		Speech: speech,
		Redis:  redisClient,
		Log:    log,
	}
}

// Validate rejects requests with unknown task kinds or missing required
// fields. Runs before any upstream call, so bad requests cost nothing
// upstream.
func Validate(req *shared.GenerateRequest) (profiles.TaskKind, error) {
	kind, err := profiles.Parse(req.Task)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Text()) == "" {
		if kind == profiles.TaskSpeech {
			return "", shared.Invalid("script is required")
		}
		return "", shared.ErrMissingPrompt
	}
	return kind, nil
}

// OpenTextStream resolves the task profile, opens the upstream chat
// stream and wraps it in a normalizer. The caller must Close the
// normalizer on every exit path; that is what propagates a client
// disconnect to the upstream connection.
func (g *Gateway) OpenTextStream(ctx context.Context, kind profiles.TaskKind, req *shared.GenerateRequest) (*stream.Normalizer, error) {
	norm, _, err := g.openTextStream(ctx, kind, req)
	return norm, err
}

func (g *Gateway) openTextStream(ctx context.Context, kind profiles.TaskKind, req *shared.GenerateRequest) (*stream.Normalizer, *profiles.Profile, error) {
	profile, err := profiles.Resolve(kind, req)
	if err != nil {
		return nil, nil, err
	}

	body, err := g.Chat.OpenStream(ctx, upstream.ChatInput{
		SystemPrompt: profile.SystemPrompt,
		UserPrompt:   req.Text(),
		Reasoning:    req.Reasoning,
	})
	if err != nil {
		return nil, nil, err
	}
	return stream.NewNormalizer(body), profile, nil
}

// TextResult is the fully drained form of a text generation.
type TextResult struct {
	Content string
	Usage   *shared.Usage
}

// GenerateText serves the non-streaming contract: the upstream stream
// is drained server-side and concatenated into one final payload.
func (g *Gateway) GenerateText(ctx context.Context, kind profiles.TaskKind, req *shared.GenerateRequest) (*TextResult, error) {
	norm, profile, err := g.openTextStream(ctx, kind, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := norm.Close(); closeErr != nil {
			g.Log.Warnw("Failed to close upstream stream", "error", closeErr)
		}
	}()

	var sb strings.Builder
	for {
		ev, nerr := norm.Next()
		if nerr == io.EOF {
			break
		}
		if nerr != nil {
			// A partial drain is discarded; the non-streaming contract
			// is all-or-nothing.
			return nil, nerr
		}
		if ev.Done {
			break
		}
		sb.WriteString(ev.Content)
	}

	if sb.Len() == 0 {
		return nil, shared.ErrNoUpstreamContent
	}
	content := sb.String()
	if !profile.Satisfies(content) {
		// Contract breaches are upstream drift, not request failures;
		// the payload still goes out, flagged for the logs.
		g.Log.Warnw("Upstream response broke the output contract",
			"task", string(kind), "content_length", len(content))
	}
	return &TextResult{Content: content, Usage: norm.Usage()}, nil
}

// SynthesizeClip invokes the binary media adapter and normalizes its
// result into an inline audio payload.
func (g *Gateway) SynthesizeClip(ctx context.Context, req *shared.GenerateRequest) (*shared.InlinePayload, error) {
	voice := req.Voice
	if voice == "" {
		voice = shared.DefaultVoice
	}
	result, err := g.Speech.Synthesize(ctx, req.Text(), voice)
	if err != nil {
		return nil, err
	}
	return media.Inline(result, media.AudioFamily)
}

// Voices lists the upstream voice catalog, cached in redis so the
// upstream is only asked every shared.VoiceCacheTTL.
func (g *Gateway) Voices(ctx context.Context) ([]shared.Voice, error) {
	if g.Redis != nil {
		cached, err := g.Redis.Get(ctx, shared.VoiceCacheKey).Result()
		if err == nil && cached != "" {
			var voices []shared.Voice
			if err := json.Unmarshal([]byte(cached), &voices); err == nil {
				g.Log.Debugw("Cache hit for voice catalog")
				return voices, nil
			}
			g.Log.Warnw("Failed to unmarshal cached voice catalog", "error", err)
		}
	}

	voices, err := g.Speech.ListVoices(ctx)
	if err != nil {
		return nil, err
	}

	if g.Redis != nil {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cacheJSON, err := json.Marshal(voices)
			if err != nil {
				g.Log.Warnw("Failed to marshal voice catalog for cache", "error", err)
				return
			}
			if err := g.Redis.Set(cacheCtx, shared.VoiceCacheKey, cacheJSON, shared.VoiceCacheTTL).Err(); err != nil {
				g.Log.Warnw("Failed to cache voice catalog", "error", err)
			}
		}()
	}

	return voices, nil
}
