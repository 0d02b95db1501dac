// Package mcp exposes the annotation scan as a Model Context Protocol tool.
package mcp

import (
	"context"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/xhad/annotscan/pkg/fsutil"
	"github.com/xhad/annotscan/pkg/pdfdoc"
	"github.com/xhad/annotscan/pkg/pipeline"
)

type Config struct {
	// FS defaults to the host filesystem, where folders are resolved to
	// absolute paths.
	FS         billy.Filesystem
	OutputBase string
	Highlight  pdfdoc.HighlightStyle
	Version    string
}

type Server struct {
	server  *mcp.Server
	config  Config
	osPaths bool

	// runs serializes scans.
	runs sync.Mutex
}

func NewServer(config Config) (*Server, error) {
	s := &Server{}
	if config.FS == nil {
		config.FS = fsutil.NewOS()
		s.osPaths = true
	}
	if config.OutputBase == "" {
		config.OutputBase = pipeline.DefaultOutputBase
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if s.osPaths {
		base, err := fsutil.Resolve(config.OutputBase)
		if err != nil {
			return nil, err
		}
		config.OutputBase = base
	}
	s.config = config

	s.server = mcp.NewServer(
		&mcp.Implementation{
			Name:    "annotscan",
			Version: config.Version,
		},
		&mcp.ServerOptions{
			HasTools: true,
		},
	)

	s.registerTools()

	return s, nil
}

func (s *Server) Serve(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
