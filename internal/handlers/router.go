package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/relay"
)

// RouterOptions wires the HTTP surface of the signaling server.
type RouterOptions struct {
	Hub            *relay.Hub
	Path           string
	AllowedOrigins []string
	// Verifier, when set, requires a valid token on the signaling handshake.
	Verifier *middleware.Verifier
	Members  MemberSource
	Socket   SocketOptions
	Logger   *zap.Logger
}

// NewRouter builds the gin engine serving the signaling endpoint, health
// check and presence API.
func NewRouter(opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(opts.Logger))

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(opts.AllowedOrigins))

	router.GET("/health", Health(opts.Hub))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/rooms/:roomId", GetRoom(opts.Hub, opts.Members, opts.Logger))
		apiGroup.GET("/users/:userId", GetUser(opts.Hub))
	}

	signaling := []gin.HandlerFunc{Signaling(opts.Hub, opts.Socket, opts.Logger)}
	if opts.Verifier != nil {
		signaling = append([]gin.HandlerFunc{middleware.JWTAuth(opts.Verifier)}, signaling...)
	}
	router.GET(opts.Path, signaling...)

	return router
}
