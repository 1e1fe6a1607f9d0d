package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/unite-defi/swapd/internal/core/domain"
	"github.com/unite-defi/swapd/internal/core/ports"
	"github.com/unite-defi/swapd/utils"
)

// DefaultPollInterval is the cadence used for chain polling when the config
// does not override it. Polling is a liveness mechanism only; settlement
// correctness comes from the on-chain conditions.
const DefaultPollInterval = 30 * time.Second

// FundingMonitor watches an HTLC address for confirmed funding.
type FundingMonitor struct {
	btcSvc   ports.BtcHtlcService
	interval time.Duration
}

func NewFundingMonitor(btcSvc ports.BtcHtlcService, interval time.Duration) *FundingMonitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &FundingMonitor{btcSvc: btcSvc, interval: interval}
}

// WaitForFunding polls until the address holds confirmed funds, the deadline
// passes, or ctx is cancelled. A timeout is reported as ErrTimeout and leaves
// no state behind; the caller decides whether to keep waiting or refund.
func (m *FundingMonitor) WaitForFunding(
	ctx context.Context, address string, deadline time.Time,
) (*ports.FundingStatus, error) {
	const op = "await funding"

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var funding *ports.FundingStatus
	err := utils.Poll(ctx, m.interval, func(ctx context.Context) (bool, error) {
		status, err := m.btcSvc.IsFunded(ctx, address)
		if err != nil {
			// explorer hiccups are expected during long waits
			log.WithError(err).WithField("address", address).Warn("funding check failed, will retry")
			return false, nil
		}
		if status.Funded {
			funding = status
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, utils.ErrPollTimeout) {
			return nil, domain.NewSwapError(
				domain.ErrTimeout, op,
				fmt.Errorf("no funding detected for %s before %s", address, deadline),
			)
		}
		return nil, err
	}

	return funding, nil
}
