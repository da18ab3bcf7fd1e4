package game

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Roster owns the guild's parties. It never holds more than its capacity.
type Roster struct {
	capacity       int
	recruitCost    int64
	defaultStats   Stats
	defaultLoyalty int

	parties map[string]*Party
	order   []string
	newID   func() string
}

func NewRoster(rules Rules) *Roster {
	return &Roster{
		capacity:       rules.RosterCapacity,
		recruitCost:    rules.RecruitCost,
		defaultStats:   rules.DefaultStats,
		defaultLoyalty: rules.DefaultLoyalty,
		parties:        map[string]*Party{},
		newID:          uuid.NewString,
	}
}

func (r *Roster) Len() int      { return len(r.order) }
func (r *Roster) Capacity() int { return r.capacity }

func (r *Roster) Get(id string) (Party, error) {
	p, ok := r.parties[id]
	if !ok {
		return Party{}, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	return p.clone(), nil
}

func (r *Roster) List() []Party {
	out := make([]Party, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.parties[id].clone())
	}
	return out
}

func (r *Roster) Available() []Party {
	out := make([]Party, 0, len(r.order))
	for _, id := range r.order {
		if p := r.parties[id]; p.Available {
			out = append(out, p.clone())
		}
	}
	return out
}

// BestMatch returns the available party with the highest success estimate for q.
func (r *Roster) BestMatch(q Quest) (Party, float64, bool) {
	var best Party
	bestRate := -1.0
	for _, p := range r.Available() {
		rate := CalculateSuccessRate(q, p)
		if rate > bestRate {
			best, bestRate = p, rate
		}
	}
	if bestRate < 0 {
		return Party{}, 0, false
	}
	return best, bestRate, true
}

func (r *Roster) Recruit(st *GameState, name string) (Party, []Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Party %d", len(r.order)+1)
	}
	if err := ValidateName(name); err != nil {
		return Party{}, nil, err
	}
	if len(r.order) >= r.capacity {
		return Party{}, nil, fmt.Errorf("%w: %d/%d", ErrRosterFull, len(r.order), r.capacity)
	}
	if st.Gold < r.recruitCost {
		return Party{}, nil, fmt.Errorf("%w: recruiting costs %d, have %d", ErrInsufficientFunds, r.recruitCost, st.Gold)
	}

	p := &Party{
		ID:      r.newID(),
		Name:    name,
		Loyalty: ClampLoyalty(r.defaultLoyalty),
	}
	for i, v := range r.defaultStats {
		p.Stats[i] = ClampStat(v)
	}
	p.Available = p.Loyalty > UnavailableLoyalty
	r.parties[p.ID] = p
	r.order = append(r.order, p.ID)

	events := []Event{spend(st, r.recruitCost), PartyRecruited{Party: p.clone()}}
	return p.clone(), events, nil
}

func (r *Roster) Train(st *GameState, id string, stat StatType, cost int64) (Party, []Event, error) {
	p, ok := r.parties[id]
	if !ok {
		return Party{}, nil, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	if !stat.Valid() {
		return Party{}, nil, fmt.Errorf("unknown stat %d", int(stat))
	}
	if p.Stats[stat] >= StatMax {
		return Party{}, nil, fmt.Errorf("%w: %s is %d", ErrStatAtMax, stat, p.Stats[stat])
	}
	if cost <= 0 {
		return Party{}, nil, ErrInvalidAmount
	}
	if st.Gold < cost {
		return Party{}, nil, fmt.Errorf("%w: training costs %d, have %d", ErrInsufficientFunds, cost, st.Gold)
	}

	before := p.Stats[stat]
	p.Stats[stat] = ClampStat(before + TrainingGain(cost))
	events := []Event{
		spend(st, cost),
		PartyTrained{PartyID: id, Stat: stat, Gain: p.Stats[stat] - before, NewValue: p.Stats[stat]},
	}
	return p.clone(), events, nil
}

func (r *Roster) PurchaseEquipment(st *GameState, id string, item Equipment) (Party, []Event, error) {
	p, ok := r.parties[id]
	if !ok {
		return Party{}, nil, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	if err := validateEquipment(item); err != nil {
		return Party{}, nil, err
	}
	if st.Gold < item.Cost {
		return Party{}, nil, fmt.Errorf("%w: %s costs %d, have %d", ErrInsufficientFunds, item.Name, item.Cost, st.Gold)
	}
	if item.ID == "" {
		item.ID = r.newID()
	}
	p.Equipment = append(p.Equipment, item)
	return p.clone(), []Event{spend(st, item.Cost), EquipmentPurchased{PartyID: id, Item: item}}, nil
}

// ModifyLoyalty clamps the new loyalty and benches the party at or below the threshold.
// It never makes a party available again; see UpdateAvailability.
func (r *Roster) ModifyLoyalty(id string, delta int) (Party, []Event, error) {
	p, ok := r.parties[id]
	if !ok {
		return Party{}, nil, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	before := p.Loyalty
	// Saturate first so a huge delta cannot wrap around.
	delta = clampInt(delta, -LoyaltyMax, LoyaltyMax)
	p.Loyalty = ClampLoyalty(before + delta)
	if p.Loyalty <= UnavailableLoyalty {
		p.Available = false
	}
	ev := LoyaltyChanged{PartyID: id, Delta: p.Loyalty - before, Loyalty: p.Loyalty, Available: p.Available}
	return p.clone(), []Event{ev}, nil
}

// UpdateAvailability recomputes availability for every party. busy reports
// parties currently holding a quest.
func (r *Roster) UpdateAvailability(busy func(partyID string) bool) []string {
	var changed []string
	for _, id := range r.order {
		p := r.parties[id]
		next := p.Loyalty > UnavailableLoyalty && !busy(id)
		if next != p.Available {
			p.Available = next
			changed = append(changed, id)
		}
	}
	return changed
}

func (r *Roster) Remove(id, reason string) ([]Event, error) {
	if _, ok := r.parties[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	delete(r.parties, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return []Event{PartyDisbanded{PartyID: id, Reason: reason}}, nil
}

func (r *Roster) reserve(id string, day int) {
	p := r.parties[id]
	p.Available = false
	p.LastQuestDay = day
}

func (r *Roster) release(id string) {
	if p, ok := r.parties[id]; ok {
		p.Available = p.Loyalty > UnavailableLoyalty
	}
}

func (r *Roster) addExperience(id string, xp int) {
	if p, ok := r.parties[id]; ok {
		p.Experience += xp
	}
}

func (r *Roster) load(parties []Party) error {
	if len(parties) > r.capacity {
		return fmt.Errorf("%w: %d parties exceed capacity %d", ErrInvalidSnapshot, len(parties), r.capacity)
	}
	for _, p := range parties {
		if p.ID == "" || r.parties[p.ID] != nil {
			return fmt.Errorf("%w: party id %q missing or duplicated", ErrInvalidSnapshot, p.ID)
		}
		for _, v := range p.Stats {
			if v < StatMin || v > StatMax {
				return fmt.Errorf("%w: party %s stat out of range", ErrInvalidSnapshot, p.ID)
			}
		}
		if p.Loyalty < LoyaltyMin || p.Loyalty > LoyaltyMax {
			return fmt.Errorf("%w: party %s loyalty out of range", ErrInvalidSnapshot, p.ID)
		}
		if p.Available && p.Loyalty <= UnavailableLoyalty {
			return fmt.Errorf("%w: party %s available at loyalty %d", ErrInvalidSnapshot, p.ID, p.Loyalty)
		}
		cp := p.clone()
		r.parties[p.ID] = &cp
		r.order = append(r.order, p.ID)
	}
	return nil
}

func spend(st *GameState, amount int64) Event {
	st.Gold -= amount
	return GoldChanged{Delta: -amount, Total: st.Gold}
}

func earn(st *GameState, amount int64) Event {
	st.Gold += amount
	return GoldChanged{Delta: amount, Total: st.Gold}
}
