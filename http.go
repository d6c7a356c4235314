package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	MaxIPsPerRequest = 100
)

const usage = `
Usage:

curl "http://localhost:12950/country/132.99.75.15"

Also you can pass several ip addresses that you need to check:

curl "http://localhost:12950/country/132.99.75.15,99.12.44.52,2001:200::1"

or post them as JSON:

curl -d '{"ips": ["132.99.75.15", "2001:200::1"]}' "http://localhost:12950/country"

`

type Resolution struct {
	IP      string `json:"ip"`
	Country string `json:"country"`
}

type batchRequest struct {
	IPs []string `json:"ips" binding:"required"`
}

type Server struct {
	config  *Config
	storage *ResolverStorage
}

func NewServer(config *Config, storage *ResolverStorage) *Server {
	return &Server{
		config:  config,
		storage: storage,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.usage)
	r.GET("/health", s.health)
	r.GET("/country/:ips", s.resolveCountry)
	r.POST("/country", s.resolveCountryBatch)

	return r
}

func (s *Server) Run() error {
	gin.SetMode(gin.ReleaseMode)

	logrus.Infof("starting the HTTP server on %s", s.config.Listen)
	return s.Router().Run(s.config.Listen)
}

func (s *Server) usage(c *gin.Context) {
	c.String(http.StatusOK, usage)
}

func (s *Server) health(c *gin.Context) {
	stats := s.storage.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"rows":     stats.Rows,
		"built_at": stats.BuiltAt,
	})
}

func (s *Server) resolveCountry(c *gin.Context) {
	ips, err := parseIPS(c.Param("ips"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.resolve(ips))
}

func (s *Server) resolveCountryBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request: " + err.Error()})
		return
	}
	if err := checkBatchSize(len(req.IPs)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.resolve(req.IPs))
}

func (s *Server) resolve(ips []string) []Resolution {
	labels := s.storage.ResolveBatch(ips)
	out := make([]Resolution, len(ips))
	for i, ip := range ips {
		out[i] = Resolution{IP: ip, Country: labels[i]}
	}

	return out
}

func checkBatchSize(n int) error {
	if n == 0 {
		return errors.New("has no ip addresses to check")
	}
	if n > MaxIPsPerRequest {
		return errors.New("limit of ips in one request reached")
	}

	return nil
}

// parseIPS splits the path parameter. Malformed entries are kept and come
// back labeled Error.
func parseIPS(ips string) ([]string, error) {
	if strings.TrimSpace(ips) == "" {
		return nil, errors.New("empty ip string passed")
	}

	parts := strings.Split(ips, ",")
	if err := checkBatchSize(len(parts)); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parts))
	for _, ip := range parts {
		out = append(out, strings.TrimSpace(ip))
	}

	return out, nil
}
