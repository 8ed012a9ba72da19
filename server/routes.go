package server

func (s *Server) initRoutes() {
	s.mux.HandleFunc("POST /auth/login", ChainMiddleware(s.handleLogin, s.APIMiddleware()...))
	s.mux.HandleFunc("POST /auth/refresh", ChainMiddleware(s.handleRefresh, s.APIMiddleware()...))
	s.mux.HandleFunc("POST /auth/logout", ChainMiddleware(s.handleLogout, s.APIMiddleware()...))

	authed := append(s.APIMiddleware(), s.RequireAuth())
	s.mux.HandleFunc("POST /auth/logout-all", ChainMiddleware(s.handleLogoutAll, authed...))
	s.mux.HandleFunc("GET /auth/session", ChainMiddleware(s.handleSession, authed...))

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}
