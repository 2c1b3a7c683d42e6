package service

import (
	"context"
	"log/slog"
	"time"

	"vpn-backend/internal/db"
)

const defaultProbeTimeout = 5 * time.Second

// NodeSelector выбирает ноду под выпуск сертификатов: активные ноды
// региона с нужным протоколом и свободными слотами опрашиваются по
// очереди, возвращается первая живая.
type NodeSelector struct {
	servers      ServerStore
	api          CertAPI
	probeTimeout time.Duration
}

func NewNodeSelector(servers ServerStore, api CertAPI) *NodeSelector {
	return &NodeSelector{
		servers:      servers,
		api:          api,
		probeTimeout: defaultProbeTimeout,
	}
}

// Select возвращает первую живую ноду региона/протокола со свободными
// слотами под slots сертификатов. Опрос одной сессии выбора проходит
// без повторов: неответившая нода в этом вызове больше не опрашивается.
func (s *NodeSelector) Select(ctx context.Context, protocol db.Protocol, regionCode string, slots int) (*db.Server, error) {
	candidates, err := s.servers.ActiveServers(regionCode, protocol, slots)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, NotFoundf("no active nodes with %d free slots in region %q for protocol %q",
			slots, regionCode, protocol)
	}

	for i := range candidates {
		server := &candidates[i]
		probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		err := s.api.Health(probeCtx, server.Address)
		cancel()
		if err == nil {
			return server, nil
		}
		slog.Warn("Node health probe failed",
			"server_id", server.ID,
			"address", server.Address,
			"error", err,
		)
	}

	return nil, Unavailablef("no healthy node in region %q for protocol %q", regionCode, protocol)
}
