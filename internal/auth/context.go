package auth

import (
	"context"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

type actorKey struct{}

func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(model.Actor)
	return actor, ok
}

// ContextActorProvider resolves the actor the middleware stored on the request context.
type ContextActorProvider struct{}

func (ContextActorProvider) CurrentActor(ctx context.Context) (model.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return model.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}
