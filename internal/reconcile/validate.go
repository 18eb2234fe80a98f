package reconcile

import (
	"fmt"

	"github.com/pergus/netbox-zabbix/internal/store"
	"github.com/pergus/netbox-zabbix/internal/zabbix"
)

// Target describes the local device a remote host is being imported onto.
type Target struct {
	Name        string
	HasConfig   bool            // a host configuration already exists for this device
	TemplateIDs map[string]bool // locally known Zabbix template ids
	Addresses   []store.Address
}

// ValidateImport checks that a remote host document is structurally
// compatible with the local target before import. Checks run in order and
// fail fast: the first violated rule is returned.
func ValidateImport(host *zabbix.Host, target *Target) error {
	if host.Host != target.Name {
		return validationErrf("remote host name %q does not match target %q", host.Host, target.Name)
	}

	if target.HasConfig {
		return validationErrf("target %q already has a host configuration", target.Name)
	}

	if len(host.Templates) == 0 {
		return validationErrf("host %q has no templates", host.Host)
	}
	for _, t := range host.Templates {
		if !target.TemplateIDs[t.TemplateID] {
			return &TemplateNotFoundError{TemplateID: t.TemplateID, Name: t.Name}
		}
	}

	if len(host.Interfaces) == 0 {
		return validationErrf("host %q has no interfaces", host.Host)
	}

	type endpoint struct {
		addr string
		port int
	}
	usedBy := map[endpoint]InterfaceType{}
	mapped := map[[2]int64]bool{} // (type, local netif) pairs already claimed

	for _, raw := range host.Interfaces {
		rec, err := NormalizeInterface(raw)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrValidation, err.Error())
		}

		switch rec.Type {
		case InterfaceAgent:
		case InterfaceSNMP:
			if rec.SNMP == nil || rec.SNMP.Version != 3 {
				return validationErrf("host %q has an SNMP interface with unsupported version (only SNMPv3 can be imported)", host.Host)
			}
		default:
			return validationErrf("host %q has an interface of unsupported type %d", host.Host, int(rec.Type))
		}

		netifID, err := resolveLocalInterface(rec, target)
		if err != nil {
			return err
		}

		ep := endpoint{addr: rec.Address(), port: rec.Port}
		if prev, taken := usedBy[ep]; taken {
			if prev == rec.Type {
				return validationErrf("host %q has two %s interfaces using %s:%d", host.Host, rec.Type, ep.addr, ep.port)
			}
			return validationErrf("host %q reuses %s:%d for both %s and %s interfaces", host.Host, ep.addr, ep.port, prev, rec.Type)
		}
		usedBy[ep] = rec.Type

		key := [2]int64{int64(rec.Type), netifID}
		if mapped[key] {
			return validationErrf("host %q has two %s interfaces resolving to the same local interface", host.Host, rec.Type)
		}
		mapped[key] = true
	}

	return nil
}

// resolveLocalInterface maps the remote interface endpoint onto a local
// address record and the network interface that address is assigned to.
func resolveLocalInterface(rec *InterfaceRecord, target *Target) (int64, error) {
	if rec.UseIP {
		for _, a := range target.Addresses {
			if a.Address == rec.IP {
				if a.NetIfID == 0 {
					return 0, validationErrf("IP %s is not assigned to an interface of %q", rec.IP, target.Name)
				}
				return a.NetIfID, nil
			}
		}
		return 0, validationErrf("IP %s is not a known address of %q", rec.IP, target.Name)
	}

	for _, a := range target.Addresses {
		if a.DNSName != "" && a.DNSName == rec.DNS {
			if a.NetIfID == 0 {
				return 0, validationErrf("DNS name %s is not assigned to an interface of %q", rec.DNS, target.Name)
			}
			return a.NetIfID, nil
		}
	}
	return 0, validationErrf("DNS name %s is not a known address of %q", rec.DNS, target.Name)
}
