package meshexport

import (
	"fmt"
	"strconv"
)

// CheckReferences runs the consumer-level integrity pass over a decoded
// export: the invariants the schema cannot express. It reports findings in
// the same Violation shape as the schema pass, all under RuleReference, in
// document order.
//
// Checks:
//   - netKey and appKey indices, scene numbers, group addresses and node
//     UUIDs are unique within their collections
//   - appKey boundNetKey, model bind entries and publish AppKey indices
//     resolve to declared keys
//   - provisioner allocated ranges do not overlap between provisioners
//   - group parent addresses are the root sentinel or a declared group
//   - element indices are unique within their node, and the unicast
//     addresses derived from them neither collide across nodes nor exceed
//     UnicastCeiling
//
// The pass assumes a schema-valid export (the form Decode returns).
// Malformed addresses that would fail the schema pass are skipped here,
// not re-reported.
func CheckReferences(export *NetworkExport) []Violation {
	var findings []Violation

	findings = append(findings, checkNetKeys(export)...)
	findings = append(findings, checkAppKeys(export)...)
	findings = append(findings, checkProvisionerRanges(export)...)
	findings = append(findings, checkGroups(export)...)
	findings = append(findings, checkScenes(export)...)
	findings = append(findings, checkNodes(export)...)

	return findings
}

func checkNetKeys(export *NetworkExport) []Violation {
	var findings []Violation
	seen := make(map[int]int)

	for i, key := range export.NetKeys {
		if first, dup := seen[key.Index]; dup {
			findings = append(findings, Violation{
				Path:     fmt.Sprintf("netKeys[%d].index", i),
				Rule:     RuleReference,
				Expected: "index unique within netKeys",
				Actual:   fmt.Sprintf("%d (first at netKeys[%d])", key.Index, first),
			})
			continue
		}
		seen[key.Index] = i
	}
	return findings
}

func checkAppKeys(export *NetworkExport) []Violation {
	var findings []Violation
	seen := make(map[int]int)

	for i, key := range export.AppKeys {
		if first, dup := seen[key.Index]; dup {
			findings = append(findings, Violation{
				Path:     fmt.Sprintf("appKeys[%d].index", i),
				Rule:     RuleReference,
				Expected: "index unique within appKeys",
				Actual:   fmt.Sprintf("%d (first at appKeys[%d])", key.Index, first),
			})
		} else {
			seen[key.Index] = i
		}

		if export.FindNetKey(key.BoundNetKey) == nil {
			findings = append(findings, Violation{
				Path:     fmt.Sprintf("appKeys[%d].boundNetKey", i),
				Rule:     RuleReference,
				Expected: "index of a declared netKey",
				Actual:   strconv.Itoa(key.BoundNetKey),
			})
		}
	}
	return findings
}

// hexRange is a parsed inclusive address or scene range.
type hexRange struct {
	low, high uint64
	path      string
}

func checkProvisionerRanges(export *NetworkExport) []Violation {
	var findings []Violation

	findings = append(findings, checkRangeOverlap(collectRanges(export, rangeUnicast))...)
	findings = append(findings, checkRangeOverlap(collectRanges(export, rangeGroup))...)
	findings = append(findings, checkRangeOverlap(collectRanges(export, rangeScene))...)

	return findings
}

const (
	rangeUnicast = "allocatedUnicastRange"
	rangeGroup   = "allocatedGroupRange"
	rangeScene   = "allocatedSceneRange"
)

// collectRanges flattens one range kind across all provisioners, tagging
// each with its owning provisioner index so overlaps can name both sides.
func collectRanges(export *NetworkExport, kind string) [][]hexRange {
	perProvisioner := make([][]hexRange, len(export.Provisioners))

	for i, p := range export.Provisioners {
		var bounds [][2]string
		switch kind {
		case rangeUnicast:
			for _, r := range p.AllocatedUnicastRange {
				bounds = append(bounds, [2]string{r.LowAddress, r.HighAddress})
			}
		case rangeGroup:
			for _, r := range p.AllocatedGroupRange {
				bounds = append(bounds, [2]string{r.LowAddress, r.HighAddress})
			}
		case rangeScene:
			for _, r := range p.AllocatedSceneRange {
				bounds = append(bounds, [2]string{r.FirstScene, r.LastScene})
			}
		}

		for j, b := range bounds {
			low, errLow := strconv.ParseUint(b[0], 16, 32)
			high, errHigh := strconv.ParseUint(b[1], 16, 32)
			if errLow != nil || errHigh != nil {
				continue
			}
			perProvisioner[i] = append(perProvisioner[i], hexRange{
				low:  low,
				high: high,
				path: fmt.Sprintf("provisioners[%d].%s[%d]", i, kind, j),
			})
		}
	}
	return perProvisioner
}

// checkRangeOverlap reports each range that overlaps a range of an earlier
// provisioner. Ranges within a single provisioner may legitimately abut or
// duplicate; only cross-provisioner overlap is a conflict.
func checkRangeOverlap(perProvisioner [][]hexRange) []Violation {
	var findings []Violation

	for i := 1; i < len(perProvisioner); i++ {
		for _, candidate := range perProvisioner[i] {
			for j := 0; j < i; j++ {
				for _, earlier := range perProvisioner[j] {
					if candidate.low <= earlier.high && earlier.low <= candidate.high {
						findings = append(findings, Violation{
							Path:     candidate.path,
							Rule:     RuleReference,
							Expected: "no overlap with ranges of other provisioners",
							Actual: fmt.Sprintf("%04X-%04X overlaps %s (%04X-%04X)",
								candidate.low, candidate.high, earlier.path, earlier.low, earlier.high),
						})
					}
				}
			}
		}
	}
	return findings
}

func checkGroups(export *NetworkExport) []Violation {
	var findings []Violation
	seen := make(map[string]int)

	for i, group := range export.Groups {
		if first, dup := seen[group.Address]; dup {
			findings = append(findings, Violation{
				Path:     fmt.Sprintf("groups[%d].address", i),
				Rule:     RuleReference,
				Expected: "address unique within groups",
				Actual:   fmt.Sprintf("%s (first at groups[%d])", group.Address, first),
			})
		} else {
			seen[group.Address] = i
		}
	}

	// Parent resolution runs after the address set is complete: forward
	// references are legitimate.
	for i, group := range export.Groups {
		if group.ParentAddress == groupRootParent {
			continue
		}
		if _, ok := seen[group.ParentAddress]; !ok {
			findings = append(findings, Violation{
				Path:     fmt.Sprintf("groups[%d].parentAddress", i),
				Rule:     RuleReference,
				Expected: `"` + groupRootParent + `" or the address of a declared group`,
				Actual:   strconv.Quote(group.ParentAddress),
			})
		}
	}
	return findings
}

// groupRootParent is the sentinel parent address of root groups.
const groupRootParent = "0000"

func checkScenes(export *NetworkExport) []Violation {
	var findings []Violation
	seen := make(map[string]int)

	for i, scene := range export.Scenes {
		if first, dup := seen[scene.Number]; dup {
			findings = append(findings, Violation{
				Path:     fmt.Sprintf("scenes[%d].number", i),
				Rule:     RuleReference,
				Expected: "number unique within scenes",
				Actual:   fmt.Sprintf("%s (first at scenes[%d])", scene.Number, first),
			})
			continue
		}
		seen[scene.Number] = i
	}
	return findings
}

func checkNodes(export *NetworkExport) []Violation {
	var findings []Violation

	seenUUID := make(map[string]int)
	occupied := make(map[uint64]string)

	for i, node := range export.Nodes {
		if first, dup := seenUUID[node.UUID]; dup {
			findings = append(findings, Violation{
				Path:     fmt.Sprintf("nodes[%d].UUID", i),
				Rule:     RuleReference,
				Expected: "UUID unique within nodes",
				Actual:   fmt.Sprintf("%s (first at nodes[%d])", node.UUID, first),
			})
		} else {
			seenUUID[node.UUID] = i
		}

		findings = append(findings, checkNodeAddressing(&node, i, occupied)...)
		findings = append(findings, checkNodeBindings(export, &node, i)...)
	}
	return findings
}

// checkNodeAddressing verifies element index uniqueness and claims the
// node's derived unicast addresses in the shared occupancy map. A node
// without elements still occupies its own address.
func checkNodeAddressing(node *Node, nodeIdx int, occupied map[uint64]string) []Violation {
	var findings []Violation

	base, err := strconv.ParseUint(node.UnicastAddress, 16, 32)
	if err != nil {
		return nil
	}

	nodePath := fmt.Sprintf("nodes[%d].unicastAddress", nodeIdx)
	if base > UnicastCeiling {
		findings = append(findings, Violation{
			Path:     nodePath,
			Rule:     RuleReference,
			Expected: fmt.Sprintf("unicast address <= %04X", UnicastCeiling),
			Actual:   node.UnicastAddress,
		})
	}

	seenIndex := make(map[int]int)
	claimed := false

	for j, element := range node.Elements {
		elemPath := fmt.Sprintf("nodes[%d].elements[%d].index", nodeIdx, j)

		if first, dup := seenIndex[element.Index]; dup {
			findings = append(findings, Violation{
				Path:     elemPath,
				Rule:     RuleReference,
				Expected: "index unique within the node's elements",
				Actual:   fmt.Sprintf("%d (first at nodes[%d].elements[%d])", element.Index, nodeIdx, first),
			})
			continue
		}
		seenIndex[element.Index] = j

		if element.Index < 0 {
			continue
		}
		addr := base + uint64(element.Index)

		// The node address ceiling was reported above; repeat only for
		// addresses the element offset pushed over.
		if addr > UnicastCeiling && addr != base {
			findings = append(findings, Violation{
				Path:     elemPath,
				Rule:     RuleReference,
				Expected: fmt.Sprintf("derived element address <= %04X", UnicastCeiling),
				Actual:   fmt.Sprintf("%04X", addr),
			})
		}

		findings = append(findings, claimAddress(occupied, addr, elemPath)...)
		claimed = true
	}

	if !claimed {
		findings = append(findings, claimAddress(occupied, base, nodePath)...)
	}
	return findings
}

func claimAddress(occupied map[uint64]string, addr uint64, path string) []Violation {
	if first, taken := occupied[addr]; taken {
		return []Violation{{
			Path:     path,
			Rule:     RuleReference,
			Expected: "unicast address unique across nodes",
			Actual:   fmt.Sprintf("%04X (first claimed by %s)", addr, first),
		}}
	}
	occupied[addr] = path
	return nil
}

// checkNodeBindings resolves every model bind entry and publish AppKey
// index against the declared appKeys.
func checkNodeBindings(export *NetworkExport, node *Node, nodeIdx int) []Violation {
	var findings []Violation

	for j, element := range node.Elements {
		for k, model := range element.Models {
			modelPath := fmt.Sprintf("nodes[%d].elements[%d].models[%d]", nodeIdx, j, k)

			for l, bound := range model.Bind {
				if export.FindAppKey(bound) == nil {
					findings = append(findings, Violation{
						Path:     fmt.Sprintf("%s.bind[%d]", modelPath, l),
						Rule:     RuleReference,
						Expected: "index of a declared appKey",
						Actual:   strconv.Itoa(bound),
					})
				}
			}

			if model.Publish != nil && export.FindAppKey(model.Publish.Index) == nil {
				findings = append(findings, Violation{
					Path:     modelPath + ".publish.index",
					Rule:     RuleReference,
					Expected: "index of a declared appKey",
					Actual:   strconv.Itoa(model.Publish.Index),
				})
			}
		}
	}
	return findings
}
