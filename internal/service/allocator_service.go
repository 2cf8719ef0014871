package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/client"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
)

// AllocationResult is the allocator's pick. PlanActive=false means the
// caller must purchase an upstream plan before provisioning; NotConfigured
// means the connection still needs its app binding.
type AllocationResult struct {
	Connection    *client.Connection
	PlanActive    bool
	NotConfigured bool
}

// AllocatorService picks which upstream connection to hand to an order.
// Priorities minimize cost: reuse fully-ready idle resources first, then
// resources needing one more setup step, and only create new (billable)
// connections as last resort. The scan is advisory: upstream state can
// change under it, and the downstream credential grant is the real
// race-resolving claim.
type AllocatorService struct {
	upstream      UpstreamAPI
	proxies       repository.ProxyStore
	stoplist      repository.StoplistStore
	defaultLocale string
}

func NewAllocatorService(upstream UpstreamAPI, proxies repository.ProxyStore, stoplist repository.StoplistStore, defaultLocale string) *AllocatorService {
	return &AllocatorService{
		upstream:      upstream,
		proxies:       proxies,
		stoplist:      stoplist,
		defaultLocale: defaultLocale,
	}
}

type candidate struct {
	conn       *client.Connection
	planActive bool
	proxyCount int
	grants     []*client.ProxyAccess
}

// SelectConnection scans all upstream connections fresh (no caching) and
// returns the best one by fixed priority:
//
//	P1: app bound, plan active, zero proxies        -> use as-is
//	P2: app bound, plan active, has proxies,
//	    not stoplisted, not live locally            -> clear grants, reuse
//	P3: plan active, no app binding, zero proxies   -> needs configuration
//	P4: app bound, no plan                          -> needs plan purchase
//	P5: nothing matched                             -> create new connection
//
// Ties break on provider-returned order.
func (s *AllocatorService) SelectConnection(ctx context.Context) (*AllocationResult, error) {
	conns, err := s.upstream.GetConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch connections: %w", err)
	}

	stoplisted, err := s.stoplist.ConnectionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch stoplist: %w", err)
	}

	var candidates []candidate
	for _, conn := range conns {
		plan, err := s.upstream.GetConnectionPlan(ctx, conn.ID)
		if err != nil {
			log.Printf("[Allocator] Skipping connection %s: plan fetch failed: %v", conn.ID, err)
			continue
		}

		grants, err := s.upstream.ListProxyAccesses(ctx, conn.ID)
		if err != nil {
			log.Printf("[Allocator] Skipping connection %s: proxy list failed: %v", conn.ID, err)
			continue
		}

		candidates = append(candidates, candidate{
			conn:       conn,
			planActive: plan.Active,
			proxyCount: len(grants),
			grants:     grants,
		})
	}

	// P1: clean reusable resource.
	for _, c := range candidates {
		if c.conn.AppBound && c.planActive && c.proxyCount == 0 {
			log.Printf("[Allocator] Selected connection %s (P1: ready, idle)", c.conn.ID)
			return &AllocationResult{Connection: c.conn, PlanActive: true}, nil
		}
	}

	// P2: reusable after clearing stale grants.
	for _, c := range candidates {
		if !c.conn.AppBound || !c.planActive || c.proxyCount == 0 {
			continue
		}
		if stoplisted[c.conn.ID] {
			continue
		}

		live, err := s.proxies.GetLiveByConnectionID(ctx, c.conn.ID, time.Now())
		if err != nil {
			return nil, fmt.Errorf("check live proxies: %w", err)
		}
		if len(live) > 0 {
			// Still serving another order; not reusable.
			continue
		}

		// Grants exist upstream but nothing local is live: stale leftovers.
		// Clear them best-effort; the grant step will surface a genuinely
		// stuck connection.
		for _, g := range c.grants {
			if err := s.upstream.DeleteProxyAccess(ctx, c.conn.ID, g.ID); err != nil {
				log.Printf("[Allocator] Failed to delete stale grant %s on connection %s: %v", g.ID, c.conn.ID, err)
			}
		}

		log.Printf("[Allocator] Selected connection %s (P2: reused after clearing %d grant(s))", c.conn.ID, c.proxyCount)
		return &AllocationResult{Connection: c.conn, PlanActive: true}, nil
	}

	// P3: plan paid for but app not yet bound.
	for _, c := range candidates {
		if !c.conn.AppBound && c.planActive && c.proxyCount == 0 {
			log.Printf("[Allocator] Selected connection %s (P3: needs app binding)", c.conn.ID)
			return &AllocationResult{Connection: c.conn, PlanActive: true, NotConfigured: true}, nil
		}
	}

	// P4: bound but plan lapsed or never purchased.
	for _, c := range candidates {
		if c.conn.AppBound && !c.planActive {
			log.Printf("[Allocator] Selected connection %s (P4: needs plan purchase)", c.conn.ID)
			return &AllocationResult{Connection: c.conn, PlanActive: false}, nil
		}
	}

	// P5: nothing reusable; create a new billable connection.
	name := fmt.Sprintf("conn-%d", time.Now().Unix())
	conn, err := s.upstream.CreateConnection(ctx, name, s.defaultLocale)
	if err != nil {
		return nil, fmt.Errorf("%w: create connection failed: %v", ErrNoConnectionAvailable, err)
	}

	log.Printf("[Allocator] Selected connection %s (P5: created new)", conn.ID)
	return &AllocationResult{Connection: conn, PlanActive: false}, nil
}
