// Copyright 2023 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admin

import (
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// BrokerAddress is the advertised network identity of one broker process.
// Host and port are explicit fields so that IPv6 literals stay unambiguous;
// the wire label form is the net.JoinHostPort encoding.
type BrokerAddress struct {
	Host string
	Port int
}

func (b BrokerAddress) String() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// ParseBrokerAddress parses a "host:port" (or "[host]:port") broker label.
// A malformed label is a caller programming error, reported as
// InvalidArgument rather than recovered from.
func ParseBrokerAddress(label string) (BrokerAddress, error) {
	host, portStr, err := net.SplitHostPort(label)
	if err != nil {
		return BrokerAddress{}, status.Errorf(codes.InvalidArgument,
			"talus: invalid broker label: %s", label)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return BrokerAddress{}, status.Errorf(codes.InvalidArgument,
			"talus: invalid broker port in label: %s", label)
	}
	return BrokerAddress{Host: host, Port: port}, nil
}

// RequestTarget is the transport-independent shape of the inbound request:
// everything a redirect needs to reproduce it against another broker.
type RequestTarget struct {
	Scheme   string
	Host     string
	Port     int
	Path     string
	RawQuery string
}

// URL renders the target as a URL for the transport layer.
func (t RequestTarget) URL() *url.URL {
	return &url.URL{
		Scheme:   t.Scheme,
		Host:     BrokerAddress{Host: t.Host, Port: t.Port}.String(),
		Path:     t.Path,
		RawQuery: t.RawQuery,
	}
}

// Redirect is the successful outcome of an ownership check against a
// non-local broker. It is not an error: the transport layer translates it
// into a redirect response and the client retries there.
type Redirect struct {
	Target RequestTarget
}

// OwnershipRouter decides whether this process is the broker that is
// authoritative for the addressed resource, and constructs the redirect
// when it is not. It performs no network I/O.
type OwnershipRouter struct {
	self BrokerAddress
	log  *slog.Logger
}

func NewOwnershipRouter(self BrokerAddress) *OwnershipRouter {
	return &OwnershipRouter{
		self: self,
		log:  slog.With(slog.String("component", "ownership-router")),
	}
}

func (r *OwnershipRouter) Self() BrokerAddress {
	return r.self
}

// EnsureLocal succeeds with a nil Redirect when the labelled broker is this
// process; otherwise it returns the same logical request re-targeted at the
// owning broker's address.
func (r *OwnershipRouter) EnsureLocal(brokerLabel string, req RequestTarget) (*Redirect, error) {
	owner, err := ParseBrokerAddress(brokerLabel)
	if err != nil {
		return nil, err
	}

	if owner == r.self {
		return nil, nil
	}

	redirect := &Redirect{
		Target: RequestTarget{
			Scheme:   req.Scheme,
			Host:     owner.Host,
			Port:     owner.Port,
			Path:     req.Path,
			RawQuery: req.RawQuery,
		},
	}

	r.log.Debug(
		"Redirecting the admin call to the owning broker",
		slog.String("broker", brokerLabel),
		slog.String("redirect", redirect.Target.URL().String()),
	)
	return redirect, nil
}
