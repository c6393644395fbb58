// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0

// Command gwcore wires the tables, pipeline, worker lanes, and route
// feeder listener described across spec.md into one running gateway.
// It owns process-level concerns only — flag parsing, table
// construction, signal handling, shutdown sequencing; every piece of
// forwarding behavior lives in the internal packages this file wires
// together.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/go-kit/kit/log"

	"github.com/fabricgate/gwcore/internal/adjacency"
	"github.com/fabricgate/gwcore/internal/configapply"
	"github.com/fabricgate/gwcore/internal/driver/memdriver"
	"github.com/fabricgate/gwcore/internal/feeder"
	"github.com/fabricgate/gwcore/internal/fib"
	"github.com/fabricgate/gwcore/internal/flowtable"
	"github.com/fabricgate/gwcore/internal/gwconfig"
	"github.com/fabricgate/gwcore/internal/iftable"
	"github.com/fabricgate/gwcore/internal/kifsrc"
	"github.com/fabricgate/gwcore/internal/logging"
	"github.com/fabricgate/gwcore/internal/natpf"
	"github.com/fabricgate/gwcore/internal/pipeline"
	"github.com/fabricgate/gwcore/internal/pubtable"
	"github.com/fabricgate/gwcore/internal/rib"
	"github.com/fabricgate/gwcore/internal/rmac"
	"github.com/fabricgate/gwcore/internal/worker"
	v1 "github.com/fabricgate/gwcore/pkg/apis/v1"
)

// interfaceBindings collects repeated -interface name=vrf flags into
// the bootstrap config's device interface list.
type interfaceBindings []v1.DeviceInterface

func (b *interfaceBindings) String() string {
	if b == nil {
		return ""
	}
	parts := make([]string, 0, len(*b))
	for _, di := range *b {
		parts = append(parts, di.Name+"="+di.VRF)
	}
	return strings.Join(parts, ",")
}

func (b *interfaceBindings) Set(value string) error {
	name, vrf, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return fmt.Errorf("-interface must be name=vrf, got %q", value)
	}
	*b = append(*b, v1.DeviceInterface{Name: name, VRF: vrf})
	return nil
}

func main() {
	logger := logging.Init()

	var (
		socketPath = flag.String("feeder-socket", "/run/gwcore/feeder.sock", "unix socket path the route feeder connects to")
		lanes      = flag.Int("lanes", 1, "number of worker lanes")
		syncKernel = flag.Bool("sync-kernel-interfaces", true, "populate the interface table from host netlink state at startup")
		deviceName = flag.String("device-name", os.Getenv("GWCORE_DEVICE_NAME"), "this gateway's device name")
		vtep       = flag.String("underlay-vtep", os.Getenv("GWCORE_UNDERLAY_VTEP"), "underlay VTEP address this gateway originates and terminates VXLAN traffic on")
	)
	var ifaceBindings interfaceBindings
	flag.Var(&ifaceBindings, "interface", "name=vrf binding for a device interface; repeatable")
	flag.Parse()

	// Writer-side tables and their published snapshots. Every pipeline
	// stage and internal/configapply read through the Published side;
	// the writer side is only ever touched from this function's own
	// setup, the route feeder's TableHandler, and internal/configapply.
	var ifacePub pubtable.Published[iftable.Table]
	ifaceWriter := iftable.NewWriter(&ifacePub)

	var rmacPub pubtable.Published[rmac.Table]
	rmacWriter := rmac.NewWriter(&rmacPub)

	var fibPub pubtable.Published[fib.Tables]
	fibWriter := fib.NewWriter(&fibPub)

	var adjPub pubtable.Published[adjacency.Table]
	adjacency.NewWriter(&adjPub).Publish()

	// Nothing in v1.GatewayConfig or the route-feeder protocol installs
	// NAT/port-forward rules yet, so the table starts and stays empty
	// until a provisioning surface for it exists.
	var natPub pubtable.Published[natpf.Table]
	natpf.NewWriter(&natPub).Publish()

	var policyPub pubtable.Published[pipeline.PeeringPolicy]

	r := rib.New()
	flows := flowtable.New()

	ifaceWriter.Publish()

	if *syncKernel {
		src := kifsrc.New(ifaceWriter, logger)
		if err := src.Sync(); err != nil {
			logger.Log("op", "startup", "error", err, "msg", "kernel interface sync failed, continuing with whatever interfaces were already staged")
		}
	}

	applier := configapply.New(ifaceWriter, r, &rmacPub, fibWriter, &policyPub)
	mgr := gwconfig.NewManager(applier.Apply)

	if *deviceName != "" && *vtep != "" {
		vtepAddr, err := netip.ParseAddr(*vtep)
		if err != nil {
			logger.Log("op", "startup", "error", err, "msg", "invalid -underlay-vtep")
			os.Exit(1)
		}
		bootstrap := v1.GatewayConfig{
			Generation: 1,
			Device: v1.Device{
				Name:       *deviceName,
				Interfaces: ifaceBindings,
			},
			Underlay: v1.Underlay{VTEPAddress: vtepAddr},
		}
		outcome, err := mgr.Commit(bootstrap)
		if err != nil {
			logger.Log("op", "startup", "error", err, "msg", "bootstrap configuration rejected")
			os.Exit(1)
		}
		logger.Log("op", "startup", "outcome", outcome.String(), "msg", "bootstrap configuration committed")
	} else {
		logger.Log("op", "startup", "msg", "no bootstrap configuration supplied; waiting for a caller to commit one")
	}

	tableHandler := feeder.NewTableHandler(r, rmacWriter, &rmacPub, ifaceWriter, fibWriter)

	listener, err := net.Listen("unix", *socketPath)
	if err != nil {
		logger.Log("op", "startup", "error", err, "msg", "failed to listen on feeder socket")
		os.Exit(1)
	}
	defer os.Remove(*socketPath)

	stopCh := make(chan struct{})
	go func() {
		c1 := make(chan os.Signal, 1)
		signal.Notify(c1, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
		<-c1
		logger.Log("op", "shutdown", "msg", "signal received, initiating shutdown")
		signal.Stop(c1)
		close(stopCh)
	}()

	var feederWG sync.WaitGroup
	feederWG.Add(1)
	go func() {
		defer feederWG.Done()
		acceptFeederConns(logger, listener, tableHandler, mgr, stopCh)
	}()

	laneCount := *lanes
	if laneCount < 1 {
		laneCount = 1
	}
	laneStop := make(chan struct{})
	lanesDone := make(chan struct{}, laneCount)
	for i := 0; i < laneCount; i++ {
		// internal/driver has no real implementation in this module's
		// scope (spec.md §1 keeps AF_PACKET/DPDK/tap drivers external),
		// so every lane is wired to its own memdriver.Driver, matching
		// the worked-example role that package documents for itself.
		drv := memdriver.New()
		pl := pipeline.New(
			pipeline.NewIngress(&ifacePub),
			pipeline.NewFlowLookup(flows),
			pipeline.NewFlowFilter(&policyPub),
			pipeline.NewIPForward(&fibPub, &rmacPub, &ifacePub),
			pipeline.NewNATPortForward(&natPub, flows),
			pipeline.NewEgress(&ifacePub, &adjPub),
		)
		lane := worker.NewLane(i, drv, drv, pl, flows, log.With(logger, "lane", i))
		go func() {
			lane.Run(laneStop)
			lanesDone <- struct{}{}
		}()
	}

	logger.Log("op", "startup", "lanes", laneCount, "socket", *socketPath, "msg", "gwcore running")

	<-stopCh

	// Graceful shutdown: stop the worker lanes before tearing down the
	// feeder listener, so an in-flight lane always finishes its current
	// burst rather than being cut off mid-pipeline while a route-feeder
	// session is still free to report state.
	logger.Log("op", "shutdown", "msg", "stopping worker lanes")
	close(laneStop)
	for i := 0; i < laneCount; i++ {
		<-lanesDone
	}

	logger.Log("op", "shutdown", "msg", "closing feeder listener")
	listener.Close()
	feederWG.Wait()

	logger.Log("op", "shutdown", "msg", "graceful shutdown complete")
}

// acceptFeederConns accepts route-feeder connections until listener
// is closed, serving each on its own goroutine per spec.md §5's "the
// external RPC handling runs on its own executor per connection."
func acceptFeederConns(logger log.Logger, listener net.Listener, handler feeder.Handler, mgr *gwconfig.Manager, stopCh <-chan struct{}) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
				logger.Log("op", "feeder", "error", err, "msg", "accept failed, feeder listener exiting")
				return
			}
		}
		go func() {
			defer conn.Close()
			session := feeder.NewSession(conn, handler, mgr.Applied)
			if err := session.Serve(); err != nil {
				logger.Log("op", "feeder", "error", err, "msg", "feeder session ended with error")
			}
		}()
	}
}
