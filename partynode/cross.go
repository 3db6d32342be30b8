package partynode

import (
	"duoram/ring"
	"duoram/triple"
)

// dtaCross runs the Du-Atallah online inner-product subprotocol for
// one cross term, using a freshly fetched triple half. myInput is this
// party's full private vector for whichever side it plays (X or Y);
// the peer supplies the other side's vector, never revealed to us.
//
// Each side additively masks its own input with its own triple-half
// component and sends BOTH resulting mask shares (uPart, vPart) in one
// frame tagged (sid, tag); receiving the peer's frame lets each side
// locally reconstruct the full masked vectors u = x - a, v = y - b
// before evaluating its share of <x, y>. A single-sided mask (only
// sending u, not also a share of v) cannot be locally reconstructed by
// the peer and does not satisfy the closure identity s_A + s_B =
// <x, y>; both sides must contribute to both masks.
//
// X-side sends first, then receives. Y-side accepts first, then
// sends.
func (p *Party) dtaCross(sid uint64, tag byte, iAmXSide bool, myInput ring.Vector, half triple.Half) (ring.Element, error) {
	var myU, myV ring.Vector
	var err error
	if iAmXSide {
		myU, err = myInput.Sub(half.A)
		if err != nil {
			return 0, err
		}
		myV = half.B.Neg()
	} else {
		myV, err = myInput.Sub(half.B)
		if err != nil {
			return 0, err
		}
		myU = half.A.Neg()
	}

	var peerU, peerV ring.Vector
	if iAmXSide {
		if err = p.sendCross(sid, tag, myU, myV); err != nil {
			return 0, err
		}
		peerU, peerV, err = p.recvCross(sid, tag)
		if err != nil {
			return 0, err
		}
	} else {
		peerU, peerV, err = p.recvCross(sid, tag)
		if err != nil {
			return 0, err
		}
		if err = p.sendCross(sid, tag, myU, myV); err != nil {
			return 0, err
		}
	}

	u, err := myU.Add(peerU)
	if err != nil {
		return 0, err
	}
	v, err := myV.Add(peerV)
	if err != nil {
		return 0, err
	}

	uDotB, err := u.Dot(half.B)
	if err != nil {
		return 0, err
	}
	aDotV, err := half.A.Dot(v)
	if err != nil {
		return 0, err
	}
	s := uDotB.Add(aDotV).Add(half.C)

	if p.role == RoleB {
		uDotV, err := u.Dot(v)
		if err != nil {
			return 0, err
		}
		s = s.Add(uDotV)
	}
	return s, nil
}
