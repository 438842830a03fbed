package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
)

// Route53Resolver reads registry entries from TXT records in a Route53
// hosted zone instead of a checked-in file. Each record is named
// "<node_id>.<DomainSuffix>" and carries a quoted "host socket_port" value.
// This is an optional, additive alternative to StaticResolver (enabled via
// REGISTRY_ROUTE53_ZONE_ID) and is never required by the coordination
// core's invariants.
type Route53Resolver struct {
	client       *route53.Client
	hostedZoneID string
	domainSuffix string
}

// NewRoute53Resolver loads AWS config from the environment/instance profile
// and returns a resolver bound to hostedZoneID.
func NewRoute53Resolver(ctx context.Context, hostedZoneID, domainSuffix string) (*Route53Resolver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: loading aws config: %w", err)
	}
	return &Route53Resolver{
		client:       route53.NewFromConfig(cfg),
		hostedZoneID: hostedZoneID,
		domainSuffix: strings.TrimSuffix(domainSuffix, "."),
	}, nil
}

func (r *Route53Resolver) Entries(ctx context.Context) ([]Entry, error) {
	out, err := r.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId: aws.String(r.hostedZoneID),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: listing route53 records: %w", err)
	}

	var entries []Entry
	for _, rrset := range out.ResourceRecordSets {
		if rrset.Type != types.RRTypeTxt || rrset.Name == nil {
			continue
		}
		nodeID, ok := nodeIDFromRecordName(aws.ToString(rrset.Name), r.domainSuffix)
		if !ok {
			continue
		}
		for _, rr := range rrset.ResourceRecords {
			entry, ok := parseTXTValue(nodeID, aws.ToString(rr.Value))
			if ok {
				entries = append(entries, entry)
				break
			}
		}
	}
	return entries, nil
}

func nodeIDFromRecordName(name, suffix string) (int, bool) {
	name = strings.TrimSuffix(name, ".")
	suffix = strings.TrimSuffix(suffix, ".")
	prefix := strings.TrimSuffix(name, "."+suffix)
	if prefix == name {
		return 0, false
	}
	id, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, false
	}
	return id, true
}

// parseTXTValue parses a `"host socket_port"` TXT record value into an
// Entry, tolerating the surrounding quotes Route53 returns TXT values with.
func parseTXTValue(nodeID int, raw string) (Entry, bool) {
	raw = strings.Trim(raw, `"`)
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return Entry{}, false
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return Entry{}, false
	}
	return Entry{NodeID: nodeID, Host: fields[0], SocketPort: port}, true
}
