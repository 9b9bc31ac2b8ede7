// Copyright (c) 2019 Caleb James DeLisle
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package globalcfg holds the network's monetary unit configuration,
// the one piece of chain-wide config btcutil.Amount needs to format and
// parse amounts. Everything else the teacher's globalcfg carried
// (consensus rules, proof-of-work selection, network-steward fees) is a
// full-node chain-validation concern the wallet engine never touches
// (spec.md §1), so it is not reproduced here.
package globalcfg

import "fmt"

// Unit is one named denomination an Amount can be formatted in, e.g.
// "BTC" at 1e8 atomic units or "Satoshi" at 1 atomic unit.
type Unit struct {
	Name       string
	ProperName string
	Units      int64
	Zeros      int
}

// Config is the global monetary-unit config, registered once per process
// by the host before any Amount is formatted.
type Config struct {
	MaxUnitsPerCoin int64
	UnitsPerCoin    int64
	Units           []Unit
}

var gConf Config
var registered bool

// BitcoinDefaults returns the conventional 8-decimal, 21-million-coin
// unit table.
func BitcoinDefaults() Config {
	return Config{
		MaxUnitsPerCoin: 21e6 * 1e8,
		UnitsPerCoin:    1e8,
		Units: []Unit{
			{Name: "BTC", ProperName: "BTC", Units: 1e8, Zeros: 8},
			{Name: "kBTC", ProperName: "kBTC", Units: 1e11, Zeros: 11},
			{Name: "mBTC", ProperName: "mBTC", Units: 1e5, Zeros: 5},
			{Name: "uBTC", ProperName: "μBTC", Units: 1e2, Zeros: 2},
			{Name: "Satoshi", ProperName: "Satoshi", Units: 1, Zeros: 0},
		},
	}
}

// SelectConfig registers the process-wide unit config. Returns false if
// a config is already registered.
func SelectConfig(conf Config) bool {
	if registered {
		return false
	}
	registered = true
	gConf = conf
	return true
}

// RemoveConfig clears the registered config; used in tests.
func RemoveConfig() bool {
	if !registered {
		return false
	}
	fmt.Printf("Configuration removed\n")
	registered = false
	gConf = Config{}
	return true
}

func checkRegistered() {
	if !registered {
		panic("globalcfg requested but not yet registered")
	}
}

// SatoshiPerBitcoin returns the number of atomic units per coin.
func SatoshiPerBitcoin() int64 {
	checkRegistered()
	return gConf.UnitsPerCoin
}

// MaxUnitsI64 returns the maximum number of atomic units of currency.
func MaxUnitsI64() int64 {
	checkRegistered()
	return gConf.MaxUnitsPerCoin
}

// UnitsPerCoinI64 returns the number of atomic units per coin.
func UnitsPerCoinI64() int64 {
	checkRegistered()
	return gConf.UnitsPerCoin
}

// AmountUnits returns the named denominations an Amount can be
// formatted in, most-significant first.
func AmountUnits() []Unit {
	checkRegistered()
	return gConf.Units
}
