package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"safimatch/model"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMissingRole token 里没有 role，平台会拒绝它
var ErrMissingRole = errors.New("token without role")

var (
	jwtSecret     []byte
	onInvalidRole func(uuid.UUID)
)

// InitAuth 初始化认证中间件；invalidRole 在收到没有 role 的 token 时调用
func InitAuth(secret string, invalidRole func(uuid.UUID)) {
	jwtSecret = []byte(secret)
	onInvalidRole = invalidRole
}

// Claims 平台签发的 access token
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthMiddleware HTTP API 认证中间件
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		// Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}

		if !authenticate(c, parts[1]) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// authenticate 校验 token 并写入上下文，失败时已经写好响应
func authenticate(c *gin.Context, tokenString string) bool {
	ident, err := ValidateToken(tokenString)
	if errors.Is(err, ErrMissingRole) {
		// 没有 role 的会话当作已退出
		if onInvalidRole != nil {
			onInvalidRole(ident.UserID)
		}
		utils.Unauthorized(c, "sessão inválida, entre novamente")
		return false
	}
	if err != nil {
		utils.Unauthorized(c, "invalid token")
		return false
	}

	c.Set("user_id", ident.UserID)
	c.Set("identity", ident)
	c.Set("access_token", tokenString)
	return true
}

// ValidateToken 验证 JWT Token
func ValidateToken(tokenString string) (model.Identity, error) {
	return parseToken(tokenString)
}

func parseToken(tokenString string, extra ...jwt.ParserOption) (model.Identity, error) {
	opts := append([]jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}, extra...)
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, opts...)
	if err != nil {
		return model.Identity{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return model.Identity{}, jwt.ErrSignatureInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Identity{}, err
	}

	ident := model.Identity{
		UserID:      userID,
		Email:       claims.Email,
		Role:        claims.Role,
		AccessToken: tokenString,
	}
	if claims.Role == "" {
		return ident, ErrMissingRole
	}
	return ident, nil
}

// SessionAuth 会话恢复和续期用：只校验签名，允许过期和没有 role 的 token
func SessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			utils.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		ident, err := parseToken(tokenString, jwt.WithoutClaimsValidation())
		if err != nil && !errors.Is(err, ErrMissingRole) {
			utils.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", ident.UserID)
		c.Set("identity", ident)
		c.Set("access_token", tokenString)
		c.Next()
	}
}

// QueryTokenAuth websocket 用 ?token= 认证
func QueryTokenAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			utils.Unauthorized(c, "missing token")
			c.Abort()
			return
		}
		if !authenticate(c, tokenString) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// Timeout 给请求上下文加超时
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	return userID.(uuid.UUID), true
}

// GetIdentity 从上下文获取登录身份
func GetIdentity(c *gin.Context) (model.Identity, bool) {
	v, exists := c.Get("identity")
	if !exists {
		return model.Identity{}, false
	}
	ident, ok := v.(model.Identity)
	return ident, ok
}
