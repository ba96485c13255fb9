package p2p

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/samrock5000/nakamoto-cash/errors"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

// BanEvent describes a ban list change, consumed by telemetry.
type BanEvent struct {
	Action string // "add" or "remove"
	Key    string
	Until  time.Time
}

// BanList tracks banned IPs and subnets. Entries expire on their own via
// the backing TTL cache; a ban outlives the peer's session but not the
// configured ban duration.
type BanList struct {
	logger ulogger.Logger
	cache  *ttlcache.Cache[string, *net.IPNet]

	banChan chan BanEvent
}

// NewBanList creates a ban list. Stop must be called to halt the cache
// janitor.
func NewBanList(logger ulogger.Logger) *BanList {
	cache := ttlcache.New[string, *net.IPNet](
		ttlcache.WithDisableTouchOnHit[string, *net.IPNet](),
	)

	go cache.Start()

	return &BanList{
		logger:  logger,
		cache:   cache,
		banChan: make(chan BanEvent, 16),
	}
}

// Subscribe returns the channel ban events are published on. Events are
// dropped when the subscriber lags.
func (b *BanList) Subscribe() <-chan BanEvent {
	return b.banChan
}

func (b *BanList) publish(event BanEvent) {
	select {
	case b.banChan <- event:
	default:
	}
}

// parseKey normalizes an IP or CIDR subnet into its cache key and matching
// subnet.
func parseKey(ipOrSubnet string) (string, *net.IPNet, error) {
	if strings.Contains(ipOrSubnet, "/") {
		_, subnet, err := net.ParseCIDR(ipOrSubnet)
		if err != nil {
			return "", nil, errors.NewInvalidArgumentError("cannot parse subnet %s", ipOrSubnet, err)
		}

		return subnet.String(), subnet, nil
	}

	ip := net.ParseIP(ipOrSubnet)
	if ip == nil {
		return "", nil, errors.NewInvalidArgumentError("cannot parse IP %s", ipOrSubnet)
	}

	var cidr string
	if ip.To4() != nil {
		cidr = fmt.Sprintf("%s/32", ipOrSubnet)
	} else {
		cidr = fmt.Sprintf("%s/128", ipOrSubnet)
	}

	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", nil, errors.NewInvalidArgumentError("cannot parse IP %s", ipOrSubnet, err)
	}

	return ipOrSubnet, subnet, nil
}

// Add bans an IP address or a subnet in CIDR notation until the expiration
// time. Adding an existing entry refreshes its expiry.
func (b *BanList) Add(ipOrSubnet string, expirationTime time.Time) error {
	key, subnet, err := parseKey(ipOrSubnet)
	if err != nil {
		b.logger.Errorf("[BanList] %v", err)
		return err
	}

	ttl := time.Until(expirationTime)
	if ttl <= 0 {
		return errors.NewInvalidArgumentError("ban expiration %s is in the past", expirationTime)
	}

	b.cache.Set(key, subnet, ttl)
	b.logger.Infof("[BanList] banned %s until %s", key, expirationTime.Format(time.RFC3339))
	b.publish(BanEvent{Action: "add", Key: key, Until: expirationTime})

	return nil
}

// Remove lifts a ban before its expiry.
func (b *BanList) Remove(ipOrSubnet string) error {
	key, _, err := parseKey(ipOrSubnet)
	if err != nil {
		b.logger.Errorf("[BanList] %v", err)
		return err
	}

	b.cache.Delete(key)
	b.publish(BanEvent{Action: "remove", Key: key})

	return nil
}

// IsBanned checks whether the given IP address matches any active ban,
// either directly or through a banned subnet.
func (b *BanList) IsBanned(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		b.logger.Errorf("[BanList] invalid IP address: %s", ipStr)
		return false
	}

	if b.cache.Get(ipStr) != nil {
		return true
	}

	for _, item := range b.cache.Items() {
		if item.Value().Contains(ip) {
			return true
		}
	}

	return false
}

// Stop halts the cache janitor.
func (b *BanList) Stop() {
	b.cache.Stop()
}
