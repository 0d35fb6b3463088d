package caddyreroute

import (
	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
)

// parseCaddyfile unmarshals tokens from h into a new Reroute.
func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var m Reroute
	err := m.UnmarshalCaddyfile(h.Dispenser)
	return &m, err
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler.
//
//	reroute [<store_path>] {
//	    store_path    <dir>
//	    collection    <name>
//	    store_timeout <duration>
//	    exclude       <prefix...>
//	}
func (m *Reroute) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	for d.Next() {
		if d.NextArg() {
			m.StorePath = d.Val()
		}
		if d.NextArg() {
			return d.ArgErr()
		}

		for d.NextBlock(0) {
			switch d.Val() {
			case "store_path":
				if !d.NextArg() {
					return d.ArgErr()
				}
				m.StorePath = d.Val()

			case "collection":
				if !d.NextArg() {
					return d.ArgErr()
				}
				m.Collection = d.Val()

			case "store_timeout":
				if !d.NextArg() {
					return d.ArgErr()
				}
				dur, err := caddy.ParseDuration(d.Val())
				if err != nil {
					return d.Errf("bad store_timeout %q: %v", d.Val(), err)
				}
				m.StoreTimeout = caddy.Duration(dur)

			case "exclude":
				args := d.RemainingArgs()
				if len(args) == 0 {
					return d.ArgErr()
				}
				m.Exclude = append(m.Exclude, args...)

			default:
				return d.Errf("unknown subdirective: %s", d.Val())
			}
		}
	}
	return nil
}

var _ caddyfile.Unmarshaler = (*Reroute)(nil)
