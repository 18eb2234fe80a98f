package reconcile

import (
	"strconv"

	"github.com/pergus/netbox-zabbix/internal/zabbix"
)

// SNMPv3 defaults applied when the remote record omits the keys.
const (
	defaultBulk           = 1
	defaultMaxRepetitions = 10
)

// NormalizeInterface converts a raw remote interface record into a typed
// InterfaceRecord. The remote API string-encodes every numeric field, so each
// required field is coerced and a MalformedRecordError is returned if one is
// missing or non-numeric. The function is pure and never mutates raw.
func NormalizeInterface(raw zabbix.RawInterface) (*InterfaceRecord, error) {
	typ, err := requireInt(raw, "type")
	if err != nil {
		return nil, err
	}
	useIP, err := requireInt(raw, "useip")
	if err != nil {
		return nil, err
	}
	main, err := requireInt(raw, "main")
	if err != nil {
		return nil, err
	}
	port, err := requireInt(raw, "port")
	if err != nil {
		return nil, err
	}
	ifaceID, err := optionalInt(raw, "interfaceid", 0)
	if err != nil {
		return nil, err
	}

	rec := &InterfaceRecord{
		Type:        InterfaceType(typ),
		InterfaceID: ifaceID,
		Main:        main != 0,
		UseIP:       useIP != 0,
		IP:          stringField(raw, "ip"),
		DNS:         stringField(raw, "dns"),
		Port:        port,
	}

	details, ok := raw["details"].(map[string]any)
	if !ok || len(details) == 0 {
		return rec, nil
	}
	version, err := optionalInt(details, "version", 0)
	if err != nil {
		return nil, err
	}

	switch version {
	case 3:
		bulk, err := optionalInt(details, "bulk", defaultBulk)
		if err != nil {
			return nil, err
		}
		maxRep, err := optionalInt(details, "max_repetitions", defaultMaxRepetitions)
		if err != nil {
			return nil, err
		}
		secLevel, err := optionalInt(details, "securitylevel", SecurityNoAuthNoPriv)
		if err != nil {
			return nil, err
		}
		authProto, err := optionalInt(details, "authprotocol", 0)
		if err != nil {
			return nil, err
		}
		privProto, err := optionalInt(details, "privprotocol", 0)
		if err != nil {
			return nil, err
		}
		rec.SNMP = &SNMPDetails{
			Version:        3,
			Bulk:           bulk,
			MaxRepetitions: maxRep,
			SecurityName:   stringField(details, "securityname"),
			SecurityLevel:  secLevel,
			AuthProtocol:   authProto,
			AuthPassphrase: stringField(details, "authpassphrase"),
			PrivProtocol:   privProto,
			PrivPassphrase: stringField(details, "privpassphrase"),
			ContextName:    stringField(details, "contextname"),
		}
	case 1, 2:
		// Accepted for round-tripping only; provisioning never emits these.
		bulk, err := optionalInt(details, "bulk", defaultBulk)
		if err != nil {
			return nil, err
		}
		rec.SNMP = &SNMPDetails{
			Version:   version,
			Bulk:      bulk,
			Community: stringField(details, "community"),
		}
	}

	return rec, nil
}

// requireInt coerces a required string-encoded integer field.
func requireInt(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, &MalformedRecordError{Field: key, Reason: "is missing"}
	}
	n, ok := coerceInt(v)
	if !ok {
		return 0, &MalformedRecordError{Field: key, Reason: "is not numeric"}
	}
	return n, nil
}

// optionalInt coerces an optional integer field, using def when absent.
func optionalInt(m map[string]any, key string, def int) (int, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	n, ok := coerceInt(v)
	if !ok {
		return 0, &MalformedRecordError{Field: key, Reason: "is not numeric"}
	}
	return n, nil
}

func coerceInt(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		return int(x), true
	case int:
		return x, true
	}
	return 0, false
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
