package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"moff.io/wallet-bridge/internal/appkit"
	"moff.io/wallet-bridge/internal/bridge"
	"moff.io/wallet-bridge/internal/chains"
	"moff.io/wallet-bridge/internal/onramp"
	"moff.io/wallet-bridge/internal/transport"
	"moff.io/wallet-bridge/pkg/common"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
	"moff.io/wallet-bridge/pkg/log/meta"
)

// respondError maps domain errors onto HTTP statuses. Fields in extra are
// added to the body.
func respondError(ctx *gin.Context, err error, extra ...gin.H) {
	status, code := http.StatusInternalServerError, 5000
	var invalid *appkit.ValidationError
	switch {
	case errors.Is(err, appkit.ErrNotInitialized),
		errors.Is(err, bridge.ErrNoBrowser),
		errors.Is(err, bridge.ErrLinkClosed):
		status, code = http.StatusConflict, 4090
	case errors.As(err, &invalid),
		errors.Is(err, transport.ErrUnsupportedTransportKind),
		errors.Is(err, chains.ErrNoKnownChains):
		status, code = http.StatusBadRequest, 4000
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, 5040
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("http - [%s] %s %s:%+v", meta.RequestID(ctx.Request.Context()), ctx.Request.Method, ctx.Request.URL.Path, err)
	}
	body := gin.H{
		"code":  code,
		"msg":   http.StatusText(status),
		"error": err.Error(),
	}
	for _, fields := range extra {
		for k, v := range fields {
			body[k] = v
		}
	}
	ctx.AbortWithStatusJSON(status, body)
}

func badRequest(ctx *gin.Context, err error) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"code":  4000,
		"msg":   http.StatusText(http.StatusBadRequest),
		"error": err.Error(),
	})
}

func (s *Server) health(ctx *gin.Context) {
	ctx.JSONP(http.StatusOK, gin.H{
		"browser": s.hub.Connected(),
	})
}

type networkView struct {
	ID        int64    `json:"id"`
	CAIP2     string   `json:"caipNetworkId"`
	Name      string   `json:"name"`
	Transport string   `json:"transport,omitempty"`
	Endpoint  string   `json:"endpoint,omitempty"`
	RPCURLs   []string `json:"rpcUrls"`
}

type configView struct {
	Key              string          `json:"key"`
	ProjectID        string          `json:"projectId"`
	Networks         []networkView   `json:"networks"`
	Metadata         appkit.Metadata `json:"metadata"`
	Features         appkit.Features `json:"features"`
	StorageKeyPrefix string          `json:"storageKeyPrefix"`
}

func newConfigView(cfg *appkit.Config) configView {
	v := configView{
		Key:              cfg.Key,
		ProjectID:        cfg.ProjectID,
		Metadata:         cfg.Metadata,
		Features:         cfg.Features,
		StorageKeyPrefix: cfg.Storage.KeyPrefix(),
	}
	for _, c := range cfg.Chains {
		n := networkView{ID: c.ID, CAIP2: c.CAIP2(), Name: c.Name, RPCURLs: c.RPCURLs}
		if client, ok := cfg.Client(c.ID); ok {
			n.Transport = string(client.Transport.Kind())
			n.Endpoint = client.Transport.Endpoint()
		}
		v.Networks = append(v.Networks, n)
	}
	return v
}

func (s *Server) initAppKit(ctx *gin.Context) {
	var opts appkit.Options
	if err := ctx.ShouldBindJSON(&opts); err != nil {
		badRequest(ctx, err)
		return
	}
	cfg, err := s.kit.Init(ctx.Request.Context(), opts)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSONP(http.StatusOK, gin.H{"config": newConfigView(cfg)})
}

func (s *Server) createConfig(ctx *gin.Context) {
	var opts appkit.Options
	if err := ctx.ShouldBindJSON(&opts); err != nil {
		badRequest(ctx, err)
		return
	}
	cfg, err := s.kit.CreateConfig(ctx.Param("key"), opts)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSONP(http.StatusOK, gin.H{"config": newConfigView(cfg)})
}

func (s *Server) getConfig(ctx *gin.Context) {
	cfg, ok := s.kit.Registry().Get(ctx.Param("key"))
	if !ok {
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"code": 4040,
			"msg":  "config not found",
		})
		return
	}
	ctx.JSONP(http.StatusOK, gin.H{"config": newConfigView(cfg)})
}

// listChains returns the chains for ?ids=1,137 or every known chain.
func (s *Server) listChains(ctx *gin.Context) {
	raw := ctx.Query("ids")
	if raw == "" {
		ctx.JSONP(http.StatusOK, gin.H{"chains": chains.All()})
		return
	}
	ids, err := common.ParseInt64List(raw)
	if err != nil {
		badRequest(ctx, errors.Wrap(err, "parse ids"))
		return
	}
	list, err := chains.FromIDs(ids)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSONP(http.StatusOK, gin.H{"chains": list})
}

func (s *Server) session(ctx *gin.Context) {
	ctx.JSONP(http.StatusOK, gin.H{"session": s.kit.Session()})
}

func (s *Server) clearStorage(ctx *gin.Context) {
	cfg, err := s.kit.Registry().Default()
	if err != nil {
		respondError(ctx, err)
		return
	}
	if err := cfg.Storage.Clear(ctx.Request.Context()); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSONP(http.StatusOK, gin.H{"success": true})
}

func (s *Server) modalAction(action func(context.Context) error) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if err := action(ctx.Request.Context()); err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSONP(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) openOnRamp(ctx *gin.Context) {
	var params onramp.PurchaseParameters
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&params); err != nil {
			badRequest(ctx, err)
			return
		}
	}
	provider, link, err := s.kit.OpenOnRamp(ctx.Request.Context(), params)
	if err != nil {
		// the link is still usable when the modal could not show it
		if link != nil {
			respondError(ctx, err, gin.H{"provider": provider, "url": link.String()})
			return
		}
		respondError(ctx, err)
		return
	}
	ctx.JSONP(http.StatusOK, gin.H{
		"provider": provider,
		"url":      link.String(),
	})
}

// onRampQRCode renders the purchase link as a PNG for hosts that cannot
// open popups.
func (s *Server) onRampQRCode(ctx *gin.Context) {
	var params onramp.PurchaseParameters
	if err := ctx.ShouldBindQuery(&params); err != nil {
		badRequest(ctx, err)
		return
	}
	size := 0
	if raw := ctx.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 2048 {
			badRequest(ctx, errors.Errorf("invalid size %q", raw))
			return
		}
		size = n
	}
	_, link, err := s.kit.OnRampLink(params)
	if err != nil {
		respondError(ctx, err)
		return
	}
	png, err := onramp.QRCode(link, size)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Header("X-OnRamp-URL", link.String())
	ctx.Data(http.StatusOK, "image/png", png)
}

func (s *Server) selectTransport(ctx *gin.Context) {
	var spec transport.Spec
	if err := ctx.ShouldBindJSON(&spec); err != nil {
		badRequest(ctx, err)
		return
	}
	d, err := spec.Descriptor()
	if err != nil {
		respondError(ctx, err)
		return
	}
	h, err := s.selector.Select(d)
	if err != nil {
		respondError(ctx, err)
		return
	}
	// Selection never dials; nothing is left open.
	defer h.Close()
	ctx.JSONP(http.StatusOK, gin.H{
		"kind":     h.Kind(),
		"endpoint": h.Endpoint(),
	})
}
