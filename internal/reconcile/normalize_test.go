package reconcile

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pergus/netbox-zabbix/internal/zabbix"
)

func TestNormalizeInterfaceAgent(t *testing.T) {
	raw := zabbix.RawInterface{
		"interfaceid": "42",
		"type":        "1",
		"main":        "1",
		"useip":       "1",
		"ip":          "10.0.0.1",
		"dns":         "",
		"port":        "10050",
	}

	rec, err := NormalizeInterface(raw)
	if err != nil {
		t.Fatalf("NormalizeInterface: %v", err)
	}

	want := &InterfaceRecord{
		Type:        InterfaceAgent,
		InterfaceID: 42,
		Main:        true,
		UseIP:       true,
		IP:          "10.0.0.1",
		Port:        10050,
	}
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("got %+v, want %+v", rec, want)
	}
}

func TestNormalizeInterfaceSNMPv3Defaults(t *testing.T) {
	// bulk, max_repetitions, and securitylevel omitted; defaults apply.
	raw := zabbix.RawInterface{
		"type":  "2",
		"main":  "1",
		"useip": "1",
		"ip":    "10.0.0.2",
		"port":  "161",
		"details": map[string]any{
			"version":      "3",
			"securityname": "monitor",
		},
	}

	rec, err := NormalizeInterface(raw)
	if err != nil {
		t.Fatalf("NormalizeInterface: %v", err)
	}
	if rec.SNMP == nil {
		t.Fatal("expected SNMP details")
	}
	if rec.SNMP.Bulk != 1 {
		t.Errorf("bulk = %d, want 1", rec.SNMP.Bulk)
	}
	if rec.SNMP.MaxRepetitions != 10 {
		t.Errorf("max_repetitions = %d, want 10", rec.SNMP.MaxRepetitions)
	}
	if rec.SNMP.SecurityLevel != SecurityNoAuthNoPriv {
		t.Errorf("securitylevel = %d, want %d", rec.SNMP.SecurityLevel, SecurityNoAuthNoPriv)
	}
	if rec.SNMP.SecurityName != "monitor" {
		t.Errorf("securityname = %q, want %q", rec.SNMP.SecurityName, "monitor")
	}
}

func TestNormalizeInterfaceSNMPv3Full(t *testing.T) {
	raw := zabbix.RawInterface{
		"interfaceid": "7",
		"type":        "2",
		"main":        "0",
		"useip":       "0",
		"ip":          "",
		"dns":         "sw1.example.com",
		"port":        "1161",
		"details": map[string]any{
			"version":         "3",
			"bulk":            "0",
			"max_repetitions": "25",
			"securityname":    "ops",
			"securitylevel":   "2",
			"authprotocol":    "1",
			"authpassphrase":  "a-secret",
			"privprotocol":    "1",
			"privpassphrase":  "p-secret",
			"contextname":     "ctx",
		},
	}

	rec, err := NormalizeInterface(raw)
	if err != nil {
		t.Fatalf("NormalizeInterface: %v", err)
	}

	want := &InterfaceRecord{
		Type:        InterfaceSNMP,
		InterfaceID: 7,
		DNS:         "sw1.example.com",
		Port:        1161,
		SNMP: &SNMPDetails{
			Version:        3,
			Bulk:           0,
			MaxRepetitions: 25,
			SecurityName:   "ops",
			SecurityLevel:  SecurityAuthPriv,
			AuthProtocol:   1,
			AuthPassphrase: "a-secret",
			PrivProtocol:   1,
			PrivPassphrase: "p-secret",
			ContextName:    "ctx",
		},
	}
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("got %+v, want %+v", rec, want)
	}
	if rec.Address() != "sw1.example.com" {
		t.Errorf("Address() = %q, want DNS name", rec.Address())
	}
}

func TestNormalizeInterfaceSNMPv2(t *testing.T) {
	raw := zabbix.RawInterface{
		"type":  "2",
		"main":  "1",
		"useip": "1",
		"ip":    "10.0.0.3",
		"port":  "161",
		"details": map[string]any{
			"version":   "2",
			"community": "public",
		},
	}

	rec, err := NormalizeInterface(raw)
	if err != nil {
		t.Fatalf("NormalizeInterface: %v", err)
	}
	want := &SNMPDetails{Version: 2, Bulk: 1, Community: "public"}
	if !reflect.DeepEqual(rec.SNMP, want) {
		t.Errorf("got %+v, want %+v", rec.SNMP, want)
	}
}

func TestNormalizeInterfaceNumericCoercion(t *testing.T) {
	// json.Unmarshal into map[string]any yields float64 for bare numbers.
	raw := zabbix.RawInterface{
		"type":  float64(1),
		"main":  1,
		"useip": float64(0),
		"dns":   "host.example.com",
		"port":  float64(10050),
	}

	rec, err := NormalizeInterface(raw)
	if err != nil {
		t.Fatalf("NormalizeInterface: %v", err)
	}
	if rec.Type != InterfaceAgent || rec.Port != 10050 || rec.UseIP {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestNormalizeInterfaceMalformed(t *testing.T) {
	base := func() zabbix.RawInterface {
		return zabbix.RawInterface{
			"type":  "1",
			"main":  "1",
			"useip": "1",
			"ip":    "10.0.0.1",
			"port":  "10050",
		}
	}

	tests := []struct {
		name   string
		mutate func(zabbix.RawInterface)
		field  string
	}{
		{"missing type", func(r zabbix.RawInterface) { delete(r, "type") }, "type"},
		{"missing port", func(r zabbix.RawInterface) { delete(r, "port") }, "port"},
		{"missing main", func(r zabbix.RawInterface) { delete(r, "main") }, "main"},
		{"missing useip", func(r zabbix.RawInterface) { delete(r, "useip") }, "useip"},
		{"non-numeric port", func(r zabbix.RawInterface) { r["port"] = "agent" }, "port"},
		{"non-numeric interfaceid", func(r zabbix.RawInterface) { r["interfaceid"] = "x" }, "interfaceid"},
		{"non-numeric bulk", func(r zabbix.RawInterface) {
			r["details"] = map[string]any{"version": "3", "bulk": "lots"}
		}, "bulk"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := base()
			tc.mutate(raw)

			_, err := NormalizeInterface(raw)
			var mErr *MalformedRecordError
			if !errors.As(err, &mErr) {
				t.Fatalf("expected MalformedRecordError, got %v", err)
			}
			if mErr.Field != tc.field {
				t.Errorf("field = %q, want %q", mErr.Field, tc.field)
			}
		})
	}
}

func TestNormalizeInterfaceDoesNotMutateInput(t *testing.T) {
	raw := zabbix.RawInterface{
		"type":    "2",
		"main":    "1",
		"useip":   "1",
		"ip":      "10.0.0.9",
		"port":    "161",
		"details": map[string]any{"version": "3"},
	}
	snapshot := map[string]any{}
	for k, v := range raw {
		snapshot[k] = v
	}

	if _, err := NormalizeInterface(raw); err != nil {
		t.Fatalf("NormalizeInterface: %v", err)
	}
	if !reflect.DeepEqual(map[string]any(raw), snapshot) {
		t.Errorf("input mutated: %+v", raw)
	}
}

func TestInterfaceWireRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  InterfaceRecord
	}{
		{
			"agent",
			InterfaceRecord{Type: InterfaceAgent, InterfaceID: 3, Main: true, UseIP: true, IP: "10.0.0.1", Port: 10050},
		},
		{
			"snmpv3",
			InterfaceRecord{
				Type: InterfaceSNMP, Main: true, UseIP: true, IP: "10.0.0.2", Port: 161,
				SNMP: &SNMPDetails{Version: 3, Bulk: 1, MaxRepetitions: 10, SecurityName: "ops", SecurityLevel: SecurityAuthNoPriv, AuthProtocol: 1, AuthPassphrase: "s"},
			},
		},
		{
			"snmpv2",
			InterfaceRecord{
				Type: InterfaceSNMP, InterfaceID: 9, Main: false, UseIP: false, DNS: "sw.example.com", Port: 161,
				SNMP: &SNMPDetails{Version: 2, Bulk: 1, Community: "public"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeInterface(tc.rec.Wire())
			if err != nil {
				t.Fatalf("NormalizeInterface(Wire()): %v", err)
			}
			if !reflect.DeepEqual(got, &tc.rec) {
				t.Errorf("round trip changed record:\n got %+v\nwant %+v", got, &tc.rec)
			}
		})
	}
}
