package flows

import "context"

// Service is the flow runner built once by the engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired.
func (s Service) Initialized() bool {
	return s.deps.Validate.VerifyAccess != nil
}

func (s Service) Login(ctx context.Context, req LoginRequest) LoginResult {
	return RunLogin(ctx, req, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken, boundSessionID string) RefreshResult {
	return RunRefresh(ctx, refreshToken, boundSessionID, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, accessToken string) ValidateResult {
	return RunValidate(ctx, accessToken, s.deps.Validate)
}

func (s Service) LogoutByAccessToken(ctx context.Context, accessToken string) LogoutResult {
	return RunLogoutByAccessToken(ctx, accessToken, s.deps.Logout)
}
